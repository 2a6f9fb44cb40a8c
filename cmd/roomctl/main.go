// Command roomctl is a command line client for the room relay.
//
// It can host or join a room and print everything the relay broadcasts,
// send game events into a room, and inspect the relay over HTTP:
//
//	roomctl host --room abc
//	roomctl join --room abc
//	roomctl send --room abc --event choice --data '"A"'
//	roomctl rooms
//	roomctl status
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PopUp2025-maker/server-signaling/relay"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "roomctl: %v\n", err)
		os.Exit(1)
	}
}

func roomFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "room",
		Usage:    "room id",
		Required: true,
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "roomctl",
		Usage:  "talk to a room relay from the terminal",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "relay base URL",
				Value:   "http://localhost:3000",
				Sources: cli.EnvVars("RELAY_URL"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "timeout for single requests",
				Value: 10 * time.Second,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "host",
				Usage: "open a room as its host and print room events",
				Flags: []cli.Flag{roomFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return joinAndListen(ctx, cmd, relay.RoleHost)
				},
			},
			{
				Name:  "join",
				Usage: "join a room as a guest and print room events",
				Flags: []cli.Flag{roomFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return joinAndListen(ctx, cmd, relay.RoleGuest)
				},
			},
			{
				Name:  "send",
				Usage: "send start-game, update-panel or choice to a room",
				Flags: []cli.Flag{
					roomFlag(),
					&cli.StringFlag{
						Name:     "event",
						Usage:    "start-game, update-panel or choice",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "data",
						Usage: "JSON panel or choice value",
						Value: "null",
					},
				},
				Action: send,
			},
			{
				Name:   "rooms",
				Usage:  "list open rooms",
				Action: listRooms,
			},
			{
				Name:   "status",
				Usage:  "show relay status",
				Action: status,
			},
		},
	}
}

func newClient(cmd *cli.Command) *Client {
	return NewClient(cmd.String("server"), cmd.Root().Writer)
}

func joinAndListen(ctx context.Context, cmd *cli.Command, role relay.Role) error {
	client := newClient(cmd)

	connectCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return err
	}
	defer client.Close()

	ack, err := client.Join(connectCtx, cmd.String("room"), role.String())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "joined %s as %s (%s): %s\n", cmd.String("room"), ack.Role, client.ID(), ack.Message)

	return client.Listen(ctx)
}

func send(ctx context.Context, cmd *cli.Command) error {
	event := cmd.String("event")
	room := cmd.String("room")

	raw := json.RawMessage(cmd.String("data"))
	if !json.Valid(raw) {
		return fmt.Errorf("--data is not valid JSON: %s", raw)
	}

	var payload interface{}
	switch event {
	case relay.EventStartGame:
		payload = map[string]interface{}{"roomId": room}
	case relay.EventUpdatePanel:
		payload = map[string]interface{}{"roomId": room, "panel": raw}
	case relay.EventChoice:
		payload = map[string]interface{}{"roomId": room, "value": raw}
	default:
		return fmt.Errorf("unsupported event %q", event)
	}

	client := newClient(cmd)
	reqCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()
	if err := client.Connect(reqCtx); err != nil {
		return err
	}
	defer client.Close()

	if event != relay.EventChoice {
		if err := client.Emit(event, payload); err != nil {
			return err
		}
		fmt.Fprintf(cmd.Root().Writer, "sent %s to %s\n", event, room)
		return nil
	}

	ack, err := client.Request(reqCtx, event, payload)
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("choice rejected: %s (%s)", ack.Error, ack.Code)
	}
	fmt.Fprintf(cmd.Root().Writer, "sent %s to %s\n", event, room)
	return nil
}

func listRooms(ctx context.Context, cmd *cli.Command) error {
	reqCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	rooms, err := newClient(cmd).Rooms(reqCtx)
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	fmt.Fprintf(out, "Open rooms (%d):\n", rooms.Count)
	for _, room := range rooms.Rooms {
		fmt.Fprintf(out, "- %s host=%s players=%d created=%s\n",
			room.ID, room.Host, len(room.Players), room.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func status(ctx context.Context, cmd *cli.Command) error {
	reqCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	s, err := newClient(cmd).Status(reqCtx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "%s: %s (uptime %.0fs, %d clients)\n", s.Status, s.Message, s.Uptime, s.ConnectedClients)
	return nil
}

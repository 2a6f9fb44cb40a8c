package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PopUp2025-maker/server-signaling/api"
	"github.com/PopUp2025-maker/server-signaling/relay"
	"github.com/PopUp2025-maker/server-signaling/transport/websocket"
	gorillaws "github.com/gorilla/websocket"
)

// Client speaks the relay protocol over one websocket connection and reads
// the HTTP API of the same server.
type Client struct {
	baseURL string
	http    *http.Client
	conn    *gorillaws.Conn
	id      relay.ConnID
	nextAck uint64

	// Events that arrive while waiting for an ack are written here
	out io.Writer
}

// NewClient creates a client for the relay at baseURL (http or https)
func NewClient(baseURL string, out io.Writer) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		out: out,
	}
}

// wsURL maps the HTTP base URL to the websocket endpoint
func wsURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Connect opens the websocket and waits for the connection id
func (c *Client) Connect(ctx context.Context) error {
	endpoint, err := wsURL(c.baseURL)
	if err != nil {
		return err
	}

	conn, _, err := gorillaws.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.conn = conn

	msg, err := c.read(ctx)
	if err != nil {
		conn.Close()
		return err
	}
	if msg.Event != websocket.EventConnected {
		conn.Close()
		return fmt.Errorf("expected %s, got %s", websocket.EventConnected, msg.Event)
	}

	var hello struct {
		ID relay.ConnID `json:"id"`
	}
	if err := json.Unmarshal(msg.Data, &hello); err != nil {
		conn.Close()
		return fmt.Errorf("parse connected: %w", err)
	}
	c.id = hello.ID
	return nil
}

// ID returns the id the relay assigned to this connection
func (c *Client) ID() relay.ConnID { return c.id }

// Close closes the websocket
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.conn.WriteMessage(gorillaws.CloseMessage, gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Emit sends an event without asking for an acknowledgment
func (c *Client) Emit(event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	if err := c.conn.WriteJSON(websocket.Message{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// Request sends an event with an ack id and waits for the acknowledgment.
// Other events received meanwhile are printed.
func (c *Client) Request(ctx context.Context, event string, data interface{}) (*relay.Ack, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event, err)
	}

	c.nextAck++
	id := c.nextAck
	if err := c.conn.WriteJSON(websocket.Message{Event: event, Data: raw, Ack: &id}); err != nil {
		return nil, fmt.Errorf("send %s: %w", event, err)
	}

	for {
		msg, err := c.read(ctx)
		if err != nil {
			return nil, err
		}
		if msg.Event != websocket.EventAck || msg.Ack == nil || *msg.Ack != id {
			c.print(msg)
			continue
		}

		var ack relay.Ack
		if err := json.Unmarshal(msg.Data, &ack); err != nil {
			return nil, fmt.Errorf("parse ack: %w", err)
		}
		return &ack, nil
	}
}

// Join joins room with the given role and fails on a negative ack
func (c *Client) Join(ctx context.Context, room, role string) (*relay.Ack, error) {
	ack, err := c.Request(ctx, relay.EventJoinRoom, map[string]string{"roomId": room, "role": role})
	if err != nil {
		return nil, err
	}
	if !ack.OK {
		return ack, fmt.Errorf("join %s as %s: %s (%s)", room, role, ack.Error, ack.Code)
	}
	return ack, nil
}

// Listen prints every event until ctx is done or the server closes the
// connection. It returns nil when the room is closed.
func (c *Client) Listen(ctx context.Context) error {
	for {
		msg, err := c.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.print(msg)
		if msg.Event == relay.EventRoomClosed {
			return nil
		}
	}
}

func (c *Client) read(ctx context.Context) (websocket.Message, error) {
	var msg websocket.Message
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	c.conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		// Unblock the pending read
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.conn.ReadJSON(&msg); err != nil {
		if ctx.Err() != nil {
			return msg, ctx.Err()
		}
		return msg, fmt.Errorf("read: %w", err)
	}
	return msg, nil
}

func (c *Client) print(msg websocket.Message) {
	if c.out == nil {
		return
	}
	if len(msg.Data) == 0 {
		fmt.Fprintf(c.out, "%s\n", msg.Event)
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", msg.Event, msg.Data)
}

// Status calls GET /ping
func (c *Client) Status(ctx context.Context) (*api.PingResponse, error) {
	var status api.PingResponse
	if err := c.getJSON(ctx, "/ping", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Rooms calls GET /api/rooms
func (c *Client) Rooms(ctx context.Context) (*api.RoomsResponse, error) {
	var rooms api.RoomsResponse
	if err := c.getJSON(ctx, "/api/rooms", &rooms); err != nil {
		return nil, err
	}
	return &rooms, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return errors.New(msg)
		}
		return fmt.Errorf("get %s failed: %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

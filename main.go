// Command server-signaling starts the room relay.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing the WebSocket relay, room API, metrics and an /mcp endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal relay if none is reachable
//
// Flags (or their environment variables, optionally from .env) control
// host/port, logging, host-only event relaying and optional ngrok tunneling
// for easy external access during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/PopUp2025-maker/server-signaling/api"
	"github.com/PopUp2025-maker/server-signaling/config"
	"github.com/PopUp2025-maker/server-signaling/relay"
	"github.com/PopUp2025-maker/server-signaling/transport/mcp"
	"github.com/PopUp2025-maker/server-signaling/transport/websocket"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Room Relay Server"
)

// main loads .env, parses flags and starts the selected mode.
func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("relay stopped with error")
	}
}

// newApp builds the command tree. Flags are declared on the root and
// inherited by every mode.
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "server-signaling",
		Usage:   "realtime room relay for host/guest games",
		Version: Version,
		Flags:   config.Flags(),
		Before:  setupLogging,
		Action:  runServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with WebSocket relay, room API and MCP endpoint (default)",
				Action:  runServer,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server, starting an internal relay if none is reachable",
				Action:  runStdioMCP,
			},
			{
				Name:   "version",
				Usage:  "Show version information",
				Action: printVersion,
			},
		},
	}
}

// setupLogging validates the configuration and installs the global logger.
// Logs always go to stderr so stdio-mcp keeps stdout for the protocol.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg := config.FromCommand(cmd)
	if err := cfg.Validate(); err != nil {
		return ctx, err
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return ctx, err
	}
	log.Logger = logger
	return ctx, nil
}

func printVersion(ctx context.Context, cmd *cli.Command) error {
	_, err := fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
	return err
}

// relayStack is one fully wired relay: hub, coordinator and HTTP surface.
type relayStack struct {
	hub         *websocket.Hub
	coordinator *relay.Coordinator
	api         *api.Server
}

func newRelayStack(cfg config.Config) *relayStack {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := websocket.NewHub()
	coordinator := relay.NewCoordinator(hub, relay.Options{
		StrictHost: cfg.StrictHost,
		Metrics:    relay.NewMetrics(registry),
	})
	hub.SetHandler(coordinator)

	return &relayStack{
		hub:         hub,
		coordinator: coordinator,
		api:         api.NewServer(coordinator, hub, registry),
	}
}

// mcpHTTPHandler serves MCP JSON-RPC messages over plain HTTP POST.
func mcpHTTPHandler(mcpServer *server.MCPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpServer.HandleMessage(r.Context(), body)
		if response == nil {
			// Notifications have no response
			w.WriteHeader(http.StatusAccepted)
			return
		}

		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	}
}

// runServer starts the relay with its HTTP surface and an /mcp endpoint.
// If ngrok is enabled it also provisions a public tunnel.
func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg := config.FromCommand(cmd)
	log.Info().Str("version", Version).Str("mode", "server").Bool("strict_host", cfg.StrictHost).Msg("starting " + AppName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack := newRelayStack(cfg)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go stack.hub.Run(hubCtx)

	mcpClient := mcp.NewClient(cfg.BaseURL(), Version)
	stack.api.Handle("/mcp", mcpHTTPHandler(mcpClient.GetMCPServer()))

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           stack.api,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Info().Str("addr", addr).Msg("HTTP server listening")
		log.Info().Msgf("WebSocket: ws://%s/ws", addr)
		log.Info().Msgf("Room API: %s/api/rooms", cfg.BaseURL())
		log.Info().Msgf("MCP endpoint: %s/mcp", cfg.BaseURL())

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if cfg.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cfg.Ngrok, stack.api)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-serveErr:
		stop()
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	stopHub()

	wg.Wait()
	log.Info().Msg("server stopped")
	return runErr
}

// runNgrok exposes handler through an ngrok tunnel until ctx is done.
func runNgrok(ctx context.Context, cfg config.Ngrok, handler http.Handler) {
	if cfg.AuthToken == "" {
		log.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN or NGROK_AUTH_TOKEN)")
		return
	}

	log.Info().Msg("starting ngrok tunnel")

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		log.Info().Str("domain", cfg.Domain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	ngrokURL := tun.URL()
	log.Info().Str("url", ngrokURL).Msg("ngrok tunnel established")
	log.Info().Msgf("  WebSocket (ngrok): %s/ws", ngrokURL)
	log.Info().Msgf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	// Serve HTTP through ngrok tunnel
	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		log.Error().Err(err).Msg("ngrok server error")
	}
	log.Info().Msg("ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server. It reuses a relay already listening
// at the configured address; otherwise it starts an internal relay bound to
// a random loopback port and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg := config.FromCommand(cmd)

	baseURL := cfg.BaseURL()
	log.Info().Str("url", baseURL).Msg("checking for external relay")

	if !relayReachable(baseURL) {
		internalURL, shutdown, err := startInternalRelay(cfg)
		if err != nil {
			return err
		}
		defer shutdown()
		baseURL = internalURL
	} else {
		log.Info().Str("url", baseURL).Msg("external relay found, using it for MCP")
	}

	mcpClient := mcp.NewClient(baseURL, Version)
	log.Info().Str("url", baseURL).Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

func relayReachable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/ping")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// startInternalRelay serves a full relay on 127.0.0.1:0 and returns its URL.
func startInternalRelay(cfg config.Config) (string, func(), error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get available port: %w", err)
	}

	addr := listener.Addr().String()
	log.Info().Str("addr", addr).Msg("no external relay found, starting internal relay")

	stack := newRelayStack(cfg)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go stack.hub.Run(hubCtx)

	httpServer := &http.Server{Handler: stack.api}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("internal HTTP server error")
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
		stopHub()
	}
	return "http://" + addr, shutdown, nil
}

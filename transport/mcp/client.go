package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PopUp2025-maker/server-signaling/api"
	"github.com/PopUp2025-maker/server-signaling/relay"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string, version string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer(version)
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer(version string) {
	c.mcpServer = server.NewMCPServer(
		"Room Relay",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Room Relay - MCP Interface

This is a thin client that proxies all requests to the relay's REST API.
Rooms are created and joined by players over the websocket protocol; these
tools only observe them.

AVAILABLE TOOLS:
- relay_status: Liveness, uptime and connected client count
- list_rooms: Every open room with its host and players
- get_room: A single room by id
- relay_protocol: The websocket events players exchange`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "relay_status",
		Description: "Get relay liveness, uptime and the number of connected clients",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleStatus)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all open rooms with their host and players",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get details of a specific open room",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room ID to retrieve",
				},
			},
			Required: []string{"room_id"},
		},
	}, c.handleGetRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "relay_protocol",
		Description: "Describe the websocket events exchanged by hosts and guests",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleProtocol)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// Tool handlers

func (c *Client) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var status api.PingResponse
	if err := c.apiCall(ctx, "GET", "/ping", nil, &status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Status: %s\nMessage: %s\nUptime: %s\nConnected clients: %d\nAt: %s\n",
		status.Status,
		status.Message,
		(time.Duration(status.Uptime * float64(time.Second))).Round(time.Second),
		status.ConnectedClients,
		status.Timestamp)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response api.RoomsResponse
	if err := c.apiCall(ctx, "GET", "/api/rooms", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Open Rooms (%d):\n\n", response.Count)
	for _, room := range response.Rooms {
		result += fmt.Sprintf("- %s (Host: %s, Players: %d, Created: %s)\n",
			room.ID, room.Host, len(room.Players), room.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	roomID, _ := args["room_id"].(string)
	if roomID == "" {
		return mcp.NewToolResultError("room_id is required"), nil
	}

	var room relay.RoomInfo
	if err := c.apiCall(ctx, "GET", "/api/rooms/"+url.PathEscape(roomID), nil, &room); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoom(room)), nil
}

func (c *Client) handleProtocol(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	protocol := `Room Relay - Websocket Protocol

Connect to /ws. Every frame is one JSON object:
  {"event": "<name>", "data": {...}, "ack": <number, optional>}
The server answers requests that carry an ack id with:
  {"event": "ack", "ack": <same id>, "data": {...}}
Right after connecting the server sends:
  {"event": "connected", "data": {"id": "<connection id>"}}

CLIENT EVENTS:
- join-room {roomId, role: "host"|"guest"} -> ack {ok, role, message} or {ok:false, error, code}
  A room has exactly one host. Guests can only join a room whose host is connected.
- start-game {roomId}            -> start-game to the whole room
- update-panel {roomId, panel}   -> update-panel {panel} to everyone else in the room
- choice {roomId, value}         -> choice {value} to everyone else, ack {ok:true}

SERVER EVENTS:
- players-update {players:[{id}]} after every join and leave
- room-closed {message} when the host leaves; the room can then be hosted again

REJECTION CODES:
AlreadyOccupied, NoHost, UnrecognizedRole, InvalidPayload, AlreadyJoined, NotHost`

	return mcp.NewToolResultText(protocol), nil
}

func formatRoom(room relay.RoomInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room: %s\n", room.ID)
	fmt.Fprintf(&b, "Host: %s\n", room.Host)
	fmt.Fprintf(&b, "Created: %s\n", room.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Players (%d):\n", len(room.Players))
	for _, p := range room.Players {
		marker := ""
		if p.ID == room.Host {
			marker = " (host)"
		}
		fmt.Fprintf(&b, "  - %s%s\n", p.ID, marker)
	}
	return b.String()
}

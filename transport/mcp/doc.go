// Package mcp provides a Model Context Protocol server for inspecting the room relay.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Read-only tools backed by the REST API
//   - Stdio and HTTP transport modes
//
// MCP Tools:
//
// The package exposes the following tools for AI agents:
//   - relay_status: liveness, uptime and connected client count
//   - list_rooms: every open room with host and players
//   - get_room: a single room by id
//   - relay_protocol: reference for the websocket events
//
// The client never touches relay state directly. Every tool is a call to the
// HTTP API, so the same binary can serve MCP for a relay running elsewhere.
//
// Usage:
//
//	// Stdio mode
//	client := mcp.NewClient("http://localhost:3000", version)
//	server.ServeStdio(client.GetMCPServer())
//
//	// HTTP mode
//	response := client.GetMCPServer().HandleMessage(ctx, body)
package mcp

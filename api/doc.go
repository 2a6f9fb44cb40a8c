// Package api provides the HTTP surface of the room relay.
//
// The api package implements:
//   - Liveness and health endpoints
//   - Read-only room inspection
//   - Prometheus metrics exposition
//   - WebSocket upgrade handling
//
// Endpoints:
//
//   - GET /              - plain text liveness message
//   - GET /ping          - status, uptime and connected client count
//   - GET /api/rooms     - list open rooms with their players
//   - GET /api/rooms/{id} - get a single room, 404 when it is not open
//   - GET /metrics       - Prometheus metrics
//   - GET /ws            - WebSocket upgrade into the relay hub
//
// Rooms are only created through the WebSocket protocol; the HTTP API never
// mutates relay state.
//
// Usage:
//
//	hub := websocket.NewHub()
//	coordinator := relay.NewCoordinator(hub, relay.Options{})
//	hub.SetHandler(coordinator)
//	go hub.Run(ctx)
//
//	server := api.NewServer(coordinator, hub, prometheus.NewRegistry())
//	http.ListenAndServe(":3000", server)
//
// CORS allows every origin, as browsers connect from arbitrary game hosts.
//
// Error Handling:
//
// Errors are returned as JSON with an appropriate HTTP status code:
//
//	{"error": "room not found: abc"}
package api

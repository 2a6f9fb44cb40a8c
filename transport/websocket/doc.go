// Package websocket provides the WebSocket transport for the room relay.
//
// The websocket package implements:
//   - Real-time bidirectional communication
//   - Stable connection ids assigned at upgrade
//   - Named groups of connections with emit-to-group
//   - Request acknowledgments
//   - Connection lifecycle management
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Each client has a read pump and a write pump
// goroutine. Connect, inbound events and disconnect are handed to a single
// Handler from the hub's Run goroutine, one at a time.
//
// Hub implements relay.Groups, so the relay core can join connections to
// rooms and broadcast to them without knowing about websockets.
//
// Message Protocol:
//
// Every text frame carries one JSON object:
//   - Incoming: {"event": "join-room", "data": {...}, "ack": 1}
//   - Outgoing: {"event": "players-update", "data": {...}}
//   - Acknowledgment: {"event": "ack", "ack": 1, "data": {...}}
//
// The ack id is optional. When present, the handler's response is sent back
// with the same id. On connect the hub sends {"event": "connected",
// "data": {"id": "<connection id>"}}.
//
// Usage:
//
//	hub := websocket.NewHub()
//	hub.SetHandler(coordinator)
//	go hub.Run(ctx)
//
//	http.HandleFunc("/ws", hub.ServeWS)
//
// Slow Consumers:
//
// Outbound messages are queued per client. A client whose queue is full is
// disconnected instead of blocking the broadcast for everyone else.
package websocket

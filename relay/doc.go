// Package relay implements the room coordination core of the signaling server.
//
// The relay package implements:
//   - A room registry holding the single host connection of every open room
//   - A membership view derived from the transport's group primitive
//   - An event relay that scopes broadcasts to a room, with or without the sender
//   - A session coordinator driving each connection through join and disconnect
//
// Core Types:
//
// Registry is the authoritative map from room identifier to host connection.
// A room is open exactly while it has an entry in the registry; there is no
// hostless room. MembershipView reads the current members of a room from the
// transport. Relay turns a room event into the right broadcast. Coordinator
// owns all three and is the only thing the transport talks to.
//
// Roles:
//
// A connection is the host of room R iff Registry.IsHost(R, conn). Roles are
// never cached on the connection. Guests may only join rooms that already
// have a host, and never write the registry.
//
// Transport:
//
// The core does not know about websockets. It depends on the Groups
// interface, which any transport offering named groups and emit-to-group can
// satisfy. See transport/websocket for the production implementation.
//
// Concurrency:
//
// Coordinator handlers run to completion under a single lock, so a join and a
// disconnect for the same room never interleave. The registry carries its own
// lock so HTTP readers can inspect it while connections are being served.
//
// Usage:
//
//	coord := relay.NewCoordinator(hub, relay.Options{})
//	hub.SetHandler(coord)
//	go hub.Run(ctx)
package relay

package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

// RoomID is the caller-chosen name of a room. No format is enforced.
type RoomID string

// ConnID identifies an open transport connection.
type ConnID string

// Role is the part a connection plays in a room
type Role int

const (
	RoleGuest Role = iota + 1
	RoleHost
)

// ParseRole validates a role received on the wire.
func ParseRole(s string) (Role, error) {
	switch s {
	case "host":
		return RoleHost, nil
	case "guest":
		return RoleGuest, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnrecognizedRole, s)
}

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleGuest:
		return "guest"
	default:
		return "unknown"
	}
}

// Event names used on the wire.
const (
	EventJoinRoom      = "join-room"
	EventStartGame     = "start-game"
	EventUpdatePanel   = "update-panel"
	EventChoice        = "choice"
	EventPlayersUpdate = "players-update"
	EventRoomClosed    = "room-closed"
)

// Room is a registry entry. It only exists while Host is connected.
type Room struct {
	ID        RoomID    `json:"id"`
	Host      ConnID    `json:"host"`
	CreatedAt time.Time `json:"createdAt"`
}

// Player is one entry of a players-update broadcast.
type Player struct {
	ID ConnID `json:"id"`
}

// RoomInfo is the read model served by the HTTP API.
type RoomInfo struct {
	ID        RoomID    `json:"id"`
	Host      ConnID    `json:"host"`
	CreatedAt time.Time `json:"createdAt"`
	Players   []Player  `json:"players"`
}

// Inbound payloads

type joinRoomRequest struct {
	RoomID RoomID `json:"roomId"`
	Role   string `json:"role"`
}

type roomRequest struct {
	RoomID RoomID `json:"roomId"`
}

type panelRequest struct {
	RoomID RoomID          `json:"roomId"`
	Panel  json.RawMessage `json:"panel"`
}

type choiceRequest struct {
	RoomID RoomID          `json:"roomId"`
	Value  json.RawMessage `json:"value"`
}

// Outbound payloads

// PlayersUpdate is the payload of players-update.
type PlayersUpdate struct {
	Players []Player `json:"players"`
}

// PanelUpdate is the payload relayed for update-panel.
type PanelUpdate struct {
	Panel json.RawMessage `json:"panel"`
}

// ChoiceUpdate is the payload relayed for choice.
type ChoiceUpdate struct {
	Value json.RawMessage `json:"value"`
}

// RoomClosed is the payload of room-closed.
type RoomClosed struct {
	Message string `json:"message"`
}

// Ack is the acknowledgment returned to the sender of join-room and choice.
type Ack struct {
	OK      bool   `json:"ok"`
	Role    string `json:"role,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func okAck() *Ack { return &Ack{OK: true} }

func failAck(err error) *Ack {
	return &Ack{OK: false, Error: err.Error(), Code: Code(err)}
}

// Groups is the transport primitive the core is built on: named groups of
// connections and emit-to-group. Implementations must be safe for concurrent use.
type Groups interface {
	// Join adds conn to the group named room.
	Join(conn ConnID, room RoomID)
	// Leave removes conn from the group named room.
	Leave(conn ConnID, room RoomID)
	// Members returns a snapshot of the group, empty if it does not exist.
	Members(room RoomID) []ConnID
	// RoomsOf returns the groups conn currently belongs to.
	RoomsOf(conn ConnID) []RoomID
	// Emit sends event to every member of room except the connection
	// except (pass "" to include everyone).
	Emit(room RoomID, except ConnID, event string, payload any)
}

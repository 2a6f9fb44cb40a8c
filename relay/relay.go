package relay

import (
	"github.com/rs/zerolog/log"
)

// Scope selects who receives a room broadcast
type Scope int

const (
	// ScopeRoom reaches every current member of the room, sender included.
	ScopeRoom Scope = iota
	// ScopeOthers reaches every current member except the sender.
	ScopeOthers
)

// DefaultClosedMessage is sent with room-closed when the host leaves.
const DefaultClosedMessage = "The host left the room. You will be redirected to the homepage."

// Relay turns room events into scoped broadcasts
type Relay struct {
	groups  Groups
	view    *MembershipView
	metrics *Metrics
}

// NewRelay creates a relay emitting through groups
func NewRelay(groups Groups, view *MembershipView, metrics *Metrics) *Relay {
	return &Relay{groups: groups, view: view, metrics: metrics}
}

// MembershipChanged sends the current player list to everyone in room.
func (r *Relay) MembershipChanged(room RoomID) {
	players := r.view.Players(room)
	r.broadcast(room, ScopeRoom, "", EventPlayersUpdate, PlayersUpdate{Players: players})
	log.Debug().Str("room", string(room)).Int("players", len(players)).Msg("players updated")
}

// GameStarted tells everyone in room, sender included, that the game started.
func (r *Relay) GameStarted(room RoomID) {
	r.broadcast(room, ScopeRoom, "", EventStartGame, nil)
	log.Info().Str("room", string(room)).Msg("game started")
}

// PanelUpdated forwards a panel value to everyone in room but the sender.
func (r *Relay) PanelUpdated(room RoomID, sender ConnID, panel []byte) {
	r.broadcast(room, ScopeOthers, sender, EventUpdatePanel, PanelUpdate{Panel: rawOrNull(panel)})
	log.Debug().Str("room", string(room)).RawJSON("panel", rawOrNull(panel)).Msg("panel relayed")
}

// ChoiceMade forwards a choice to everyone in room but the sender.
func (r *Relay) ChoiceMade(room RoomID, sender ConnID, value []byte) {
	r.broadcast(room, ScopeOthers, sender, EventChoice, ChoiceUpdate{Value: rawOrNull(value)})
	log.Debug().Str("room", string(room)).RawJSON("value", rawOrNull(value)).Msg("choice relayed")
}

// RoomClosed notifies the remaining members of room that it closed. The
// departing host must already have left the group.
func (r *Relay) RoomClosed(room RoomID, reason string) {
	r.broadcast(room, ScopeRoom, "", EventRoomClosed, RoomClosed{Message: reason})
}

func (r *Relay) broadcast(room RoomID, scope Scope, sender ConnID, event string, payload any) {
	except := ConnID("")
	if scope == ScopeOthers {
		except = sender
	}
	r.groups.Emit(room, except, event, payload)
	r.metrics.eventRelayed(event)
}

// rawOrNull keeps opaque payloads opaque while ensuring they re-encode as JSON.
func rawOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}

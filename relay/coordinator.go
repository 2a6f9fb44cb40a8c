package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Options configures a Coordinator
type Options struct {
	// StrictHost drops start-game, update-panel and choice events that do
	// not come from the registered host of the room.
	StrictHost bool

	// ClosedMessage overrides DefaultClosedMessage.
	ClosedMessage string

	// Metrics may be nil.
	Metrics *Metrics
}

type connState int

const (
	stateUnjoined connState = iota
	stateJoined
)

type participant struct {
	state connState
	room  RoomID
}

// Coordinator drives every connection through Unjoined -> Joined -> Departed
// and is the only writer of the registry.
type Coordinator struct {
	groups   Groups
	registry *Registry
	view     *MembershipView
	relay    *Relay
	opts     Options

	conns map[ConnID]*participant
	mu    sync.Mutex
}

// NewCoordinator creates a coordinator with its own registry, wired to groups
func NewCoordinator(groups Groups, opts Options) *Coordinator {
	if opts.ClosedMessage == "" {
		opts.ClosedMessage = DefaultClosedMessage
	}
	view := NewMembershipView(groups)
	return &Coordinator{
		groups:   groups,
		registry: NewRegistry(),
		view:     view,
		relay:    NewRelay(groups, view, opts.Metrics),
		opts:     opts,
		conns:    make(map[ConnID]*participant),
	}
}

// Registry exposes the room registry for read access
func (c *Coordinator) Registry() *Registry { return c.registry }

// Connect registers a new connection in the Unjoined state.
func (c *Coordinator) Connect(conn ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn] = &participant{state: stateUnjoined}
	log.Info().Str("conn", string(conn)).Msg("connected")
}

// Reply delivers an acknowledgment to the sender of an event. The transport
// passes nil when the sender did not ask for one.
type Reply func(ack any)

// Handle processes one inbound event from conn. Acknowledgments go through
// reply. Events from unknown or departed connections are ignored.
func (c *Coordinator) Handle(conn ConnID, event string, data json.RawMessage, reply Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.conns[conn]
	if !ok {
		log.Debug().Str("conn", string(conn)).Str("event", event).Msg("event from unknown connection ignored")
		return
	}

	switch event {
	case EventJoinRoom:
		c.handleJoin(conn, p, data, reply)
	case EventStartGame:
		c.handleStart(conn, data)
	case EventUpdatePanel:
		c.handlePanel(conn, data)
	case EventChoice:
		c.handleChoice(conn, data, reply)
	default:
		log.Warn().Str("conn", string(conn)).Str("event", event).Msg("unknown event ignored")
	}
}

// Disconnect tears down conn: the host's departure closes its room, a
// guest's departure refreshes the player list. Disconnecting a connection
// that never joined has no room side effects.
func (c *Coordinator) Disconnect(conn ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.conns, conn)

	for _, room := range c.groups.RoomsOf(conn) {
		c.groups.Leave(conn, room)

		if c.registry.RemoveIfHost(room, conn) {
			c.relay.RoomClosed(room, c.opts.ClosedMessage)
			c.evict(room)
			log.Info().Str("room", string(room)).Str("conn", string(conn)).Msg("host left, room closed")
			continue
		}

		c.relay.MembershipChanged(room)
		log.Info().Str("room", string(room)).Str("conn", string(conn)).Msg("guest left")
	}

	log.Info().Str("conn", string(conn)).Msg("disconnected")
}

// ListRooms returns every open room with its current players
func (c *Coordinator) ListRooms() []RoomInfo {
	rooms := c.registry.List()
	result := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		result = append(result, c.roomInfo(room))
	}
	return result
}

// GetRoom returns a single open room
func (c *Coordinator) GetRoom(id RoomID) (RoomInfo, error) {
	room, ok := c.registry.Lookup(id)
	if !ok {
		return RoomInfo{}, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return c.roomInfo(room), nil
}

func (c *Coordinator) roomInfo(room Room) RoomInfo {
	return RoomInfo{
		ID:        room.ID,
		Host:      room.Host,
		CreatedAt: room.CreatedAt,
		Players:   c.view.Players(room.ID),
	}
}

func (c *Coordinator) handleJoin(conn ConnID, p *participant, data json.RawMessage, reply Reply) {
	var req joinRoomRequest
	if err := decode(data, &req); err != nil {
		c.rejectJoin(conn, "", err, reply)
		return
	}
	if req.RoomID == "" {
		c.rejectJoin(conn, "", fmt.Errorf("%w: roomId is required", ErrInvalidPayload), reply)
		return
	}
	if p.state == stateJoined {
		c.rejectJoin(conn, req.RoomID, ErrAlreadyJoined, reply)
		return
	}

	role, err := ParseRole(req.Role)
	if err != nil {
		c.rejectJoin(conn, req.RoomID, err, reply)
		return
	}

	var message string
	switch role {
	case RoleHost:
		if err := c.registry.TryRegisterHost(req.RoomID, conn); err != nil {
			c.rejectJoin(conn, req.RoomID, err, reply)
			return
		}
		message = "Room created."
	case RoleGuest:
		if !c.registry.HostExists(req.RoomID) {
			c.rejectJoin(conn, req.RoomID, ErrNoHost, reply)
			return
		}
		message = "Joined the room."
	}

	c.groups.Join(conn, req.RoomID)
	p.state = stateJoined
	p.room = req.RoomID

	respond(reply, &Ack{OK: true, Role: role.String(), Message: message})
	log.Info().Str("room", string(req.RoomID)).Str("conn", string(conn)).Str("role", role.String()).Msg("joined")

	c.relay.MembershipChanged(req.RoomID)
}

func (c *Coordinator) rejectJoin(conn ConnID, room RoomID, err error, reply Reply) {
	ack := failAck(err)
	c.opts.Metrics.joinRejected(ack.Code)
	respond(reply, ack)
	log.Info().Str("room", string(room)).Str("conn", string(conn)).Str("code", ack.Code).Msg("join rejected")
}

func (c *Coordinator) handleStart(conn ConnID, data json.RawMessage) {
	var req roomRequest
	if err := c.decodeRoomEvent(conn, EventStartGame, data, &req, &req.RoomID); err != nil {
		return
	}
	if err := c.authorize(req.RoomID, conn); err != nil {
		return
	}
	c.relay.GameStarted(req.RoomID)
}

func (c *Coordinator) handlePanel(conn ConnID, data json.RawMessage) {
	var req panelRequest
	if err := c.decodeRoomEvent(conn, EventUpdatePanel, data, &req, &req.RoomID); err != nil {
		return
	}
	if err := c.authorize(req.RoomID, conn); err != nil {
		return
	}
	c.relay.PanelUpdated(req.RoomID, conn, req.Panel)
}

func (c *Coordinator) handleChoice(conn ConnID, data json.RawMessage, reply Reply) {
	var req choiceRequest
	if err := c.decodeRoomEvent(conn, EventChoice, data, &req, &req.RoomID); err != nil {
		respond(reply, failAck(err))
		return
	}
	if err := c.authorize(req.RoomID, conn); err != nil {
		respond(reply, failAck(err))
		return
	}
	c.relay.ChoiceMade(req.RoomID, conn, req.Value)
	respond(reply, okAck())
}

// decodeRoomEvent unmarshals a room-scoped event and checks it names a room.
func (c *Coordinator) decodeRoomEvent(conn ConnID, event string, data json.RawMessage, dst any, room *RoomID) error {
	err := decode(data, dst)
	if err == nil && *room == "" {
		err = fmt.Errorf("%w: roomId is required", ErrInvalidPayload)
	}
	if err != nil {
		log.Warn().Err(err).Str("conn", string(conn)).Str("event", event).Msg("malformed event dropped")
	}
	return err
}

// authorize enforces StrictHost. Without it every sender is trusted.
func (c *Coordinator) authorize(room RoomID, conn ConnID) error {
	if !c.opts.StrictHost || c.registry.IsHost(room, conn) {
		return nil
	}
	log.Warn().Str("room", string(room)).Str("conn", string(conn)).Msg("event from non-host dropped")
	return ErrNotHost
}

// evict removes the remaining members from a closed room's group so a new
// host starts from an empty room.
func (c *Coordinator) evict(room RoomID) {
	for _, member := range c.view.MembersOf(room) {
		c.groups.Leave(member, room)
		if p, ok := c.conns[member]; ok && p.room == room {
			p.state = stateUnjoined
			p.room = ""
		}
	}
}

func respond(reply Reply, ack *Ack) {
	if reply != nil {
		reply(ack)
	}
}

func decode(data json.RawMessage, dst any) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: field %s must be %s", ErrInvalidPayload, typeErr.Field, typeErr.Type)
		}
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

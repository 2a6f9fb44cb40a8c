package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/PopUp2025-maker/server-signaling/relay"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Outbound messages buffered per client before it is dropped.
	sendBuffer = 256
)

// EventConnected is sent to every client right after the upgrade.
const EventConnected = "connected"

// EventAck carries the response to a request that had an ack id.
const EventAck = "ack"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins, matching the HTTP CORS policy
		return true
	},
}

// Message is the frame exchanged in both directions
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *uint64         `json:"ack,omitempty"`
}

type outbound struct {
	Event string  `json:"event"`
	Data  any     `json:"data,omitempty"`
	Ack   *uint64 `json:"ack,omitempty"`
}

// Handler receives connection lifecycle and inbound events. All calls are
// made from the hub's Run goroutine.
type Handler interface {
	Connect(conn relay.ConnID)
	Handle(conn relay.ConnID, event string, data json.RawMessage, reply relay.Reply)
	Disconnect(conn relay.ConnID)
}

// Client is a single websocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   relay.ConnID
}

// ID returns the connection id assigned at upgrade.
func (c *Client) ID() relay.ConnID { return c.id }

type inbound struct {
	client  *Client
	message Message
}

// Hub maintains the set of active clients and their groups. It implements
// relay.Groups.
type Hub struct {
	handler Handler

	// Registered clients by id
	clients map[relay.ConnID]*Client

	// Group name -> member ids, and the reverse index
	groups      map[relay.RoomID]map[relay.ConnID]struct{}
	memberships map[relay.ConnID]map[relay.RoomID]struct{}

	mu sync.RWMutex

	// Inbound messages from clients
	inbound chan inbound

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[relay.ConnID]*Client),
		groups:      make(map[relay.RoomID]map[relay.ConnID]struct{}),
		memberships: make(map[relay.ConnID]map[relay.RoomID]struct{}),
		inbound:     make(chan inbound),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
	}
}

// SetHandler installs the event handler. Must be called before Run.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Run starts the hub's event loop. It returns when ctx is cancelled, after
// closing every client connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case in := <-h.inbound:
			h.dispatch(in)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// ServeWS upgrades the request and starts the client pumps
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   relay.ConnID(uuid.NewString()),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Join adds conn to the group named room
func (h *Hub) Join(conn relay.ConnID, room relay.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[room] == nil {
		h.groups[room] = make(map[relay.ConnID]struct{})
	}
	h.groups[room][conn] = struct{}{}

	if h.memberships[conn] == nil {
		h.memberships[conn] = make(map[relay.RoomID]struct{})
	}
	h.memberships[conn][room] = struct{}{}
}

// Leave removes conn from the group named room
func (h *Hub) Leave(conn relay.ConnID, room relay.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn, room)
}

func (h *Hub) leaveLocked(conn relay.ConnID, room relay.RoomID) {
	if members, ok := h.groups[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.groups, room)
		}
	}
	if rooms, ok := h.memberships[conn]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.memberships, conn)
		}
	}
}

// Members returns a snapshot of the group
func (h *Hub) Members(room relay.RoomID) []relay.ConnID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]relay.ConnID, 0, len(h.groups[room]))
	for id := range h.groups[room] {
		members = append(members, id)
	}
	return members
}

// RoomsOf returns the groups conn belongs to, sorted by name
func (h *Hub) RoomsOf(conn relay.ConnID) []relay.RoomID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]relay.RoomID, 0, len(h.memberships[conn]))
	for room := range h.memberships[conn] {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

// Emit sends event to every member of room except the given connection.
// Clients whose send buffer is full are disconnected.
func (h *Hub) Emit(room relay.RoomID, except relay.ConnID, event string, payload any) {
	data, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id := range h.groups[room] {
		if id == except {
			continue
		}
		if client, ok := h.clients[id]; ok {
			h.deliverLocked(client, data)
		}
	}
}

// reply builds the response sink for a request. It is nil when the client
// did not ask for an acknowledgment.
func (h *Hub) reply(client *Client, ack *uint64) relay.Reply {
	if ack == nil {
		return nil
	}
	id := *ack
	return func(response any) {
		h.sendTo(client, outbound{Event: EventAck, Data: response, Ack: &id})
	}
}

func (h *Hub) sendTo(client *Client, message outbound) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Str("event", message.Event).Msg("failed to marshal message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[client.id] == client {
		h.deliverLocked(client, data)
	}
}

// deliverLocked queues data without blocking. A client that cannot keep up
// has its connection closed; its read pump then unregisters it.
func (h *Hub) deliverLocked(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		log.Warn().Str("conn", string(client.id)).Msg("send buffer full, dropping client")
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// registerClient adds a client and announces its id
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	total := len(h.clients)
	h.mu.Unlock()

	log.Info().Str("conn", string(client.id)).Int("clients", total).Msg("client registered")

	h.sendTo(client, outbound{Event: EventConnected, Data: map[string]relay.ConnID{"id": client.id}})
	if h.handler != nil {
		h.handler.Connect(client.id)
	}
}

// unregisterClient notifies the handler, then drops the client and its groups
func (h *Hub) unregisterClient(client *Client) {
	h.mu.RLock()
	current, ok := h.clients[client.id]
	h.mu.RUnlock()
	if !ok || current != client {
		return
	}

	if h.handler != nil {
		h.handler.Disconnect(client.id)
	}

	h.mu.Lock()
	for room := range h.memberships[client.id] {
		h.leaveLocked(client.id, room)
	}
	delete(h.clients, client.id)
	close(client.send)
	total := len(h.clients)
	h.mu.Unlock()

	log.Info().Str("conn", string(client.id)).Int("clients", total).Msg("client unregistered")
}

func (h *Hub) dispatch(in inbound) {
	h.mu.RLock()
	current := h.clients[in.client.id]
	h.mu.RUnlock()
	if current != in.client {
		return
	}

	if in.message.Event == "" {
		log.Warn().Str("conn", string(in.client.id)).Msg("frame without event ignored")
		return
	}
	if h.handler == nil {
		return
	}
	h.handler.Handle(in.client.id, in.message.Event, in.message.Data, h.reply(in.client, in.message.Ack))
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("conn", string(c.id)).Msg("websocket error")
			}
			return
		}

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			log.Warn().Err(err).Str("conn", string(c.id)).Msg("malformed frame ignored")
			continue
		}
		select {
		case c.hub.inbound <- inbound{client: c, message: message}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection, one
// frame per message
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

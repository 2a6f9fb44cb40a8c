package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PopUp2025-maker/server-signaling/relay"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	require.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.groups)
	assert.NotNil(t, hub.inbound)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.Equal(t, 0, hub.Count())
}

func TestHubGroups(t *testing.T) {
	hub := NewHub()

	hub.Join("a", "abc")
	hub.Join("b", "abc")
	hub.Join("a", "xyz")

	assert.ElementsMatch(t, []relay.ConnID{"a", "b"}, hub.Members("abc"))
	assert.Equal(t, []relay.RoomID{"abc", "xyz"}, hub.RoomsOf("a"))

	hub.Leave("a", "abc")
	assert.Equal(t, []relay.ConnID{"b"}, hub.Members("abc"))
	assert.Equal(t, []relay.RoomID{"xyz"}, hub.RoomsOf("a"))

	hub.Leave("b", "abc")
	_, exists := hub.groups["abc"]
	assert.False(t, exists, "empty group should be cleaned up")
	assert.Empty(t, hub.Members("abc"))
	assert.NotNil(t, hub.Members("abc"))
}

func TestHubEmit(t *testing.T) {
	hub := NewHub()

	clients := map[relay.ConnID]*Client{}
	for _, id := range []relay.ConnID{"a", "b", "c"} {
		c := &Client{hub: hub, id: id, send: make(chan []byte, 4)}
		hub.clients[id] = c
		clients[id] = c
	}
	hub.Join("a", "abc")
	hub.Join("b", "abc")

	hub.Emit("abc", "a", relay.EventChoice, relay.ChoiceUpdate{Value: json.RawMessage(`"A"`)})

	assert.Len(t, clients["a"].send, 0, "sender is excluded")
	assert.Len(t, clients["c"].send, 0, "non-member receives nothing")
	require.Len(t, clients["b"].send, 1)
	assert.JSONEq(t, `{"event":"choice","data":{"value":"A"}}`, string(<-clients["b"].send))

	hub.Emit("abc", "", relay.EventStartGame, nil)
	assert.Len(t, clients["a"].send, 1)
	assert.JSONEq(t, `{"event":"start-game"}`, string(<-clients["a"].send))
}

func TestHubEmitFullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub()
	slow := &Client{hub: hub, id: "slow", send: make(chan []byte, 1)}
	hub.clients["slow"] = slow
	hub.Join("slow", "abc")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Emit("abc", "", relay.EventStartGame, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full send buffer")
	}
	assert.Len(t, slow.send, 1)
}

func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub()
	handler := &recordingHandler{}
	hub.SetHandler(handler)

	client := &Client{hub: hub, id: "a", send: make(chan []byte, 4)}
	hub.registerClient(client)
	hub.Join("a", "abc")

	require.Len(t, client.send, 1)
	assert.JSONEq(t, `{"event":"connected","data":{"id":"a"}}`, string(<-client.send))
	assert.Equal(t, []relay.ConnID{"a"}, handler.connected)

	hub.unregisterClient(client)
	assert.Equal(t, []relay.ConnID{"a"}, handler.disconnected)
	assert.Equal(t, 0, hub.Count())
	assert.Empty(t, hub.RoomsOf("a"))

	_, open := <-client.send
	assert.False(t, open, "send channel should be closed")

	hub.unregisterClient(client)
	assert.Len(t, handler.disconnected, 1, "second unregister is a no-op")
}

func TestHubReply(t *testing.T) {
	hub := NewHub()
	client := &Client{hub: hub, id: "a", send: make(chan []byte, 4)}
	hub.clients["a"] = client

	assert.Nil(t, hub.reply(client, nil))

	id := uint64(0)
	reply := hub.reply(client, &id)
	require.NotNil(t, reply)
	reply(map[string]bool{"ok": true})

	require.Len(t, client.send, 1)
	assert.JSONEq(t, `{"event":"ack","ack":0,"data":{"ok":true}}`, string(<-client.send))
}

type recordingHandler struct {
	connected    []relay.ConnID
	disconnected []relay.ConnID
}

func (r *recordingHandler) Connect(conn relay.ConnID) { r.connected = append(r.connected, conn) }
func (r *recordingHandler) Handle(relay.ConnID, string, json.RawMessage, relay.Reply) {}
func (r *recordingHandler) Disconnect(conn relay.ConnID) {
	r.disconnected = append(r.disconnected, conn)
}

// End-to-end tests through a real coordinator

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   relay.ConnID
	ack  uint64
}

func newTestServer(t *testing.T, opts relay.Options) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub()
	hub.SetHandler(relay.NewCoordinator(hub, opts))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return server, hub
}

func dial(t *testing.T, server *httptest.Server) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &testClient{t: t, conn: conn}
	msg := c.read()
	require.Equal(t, EventConnected, msg.Event)
	var hello struct {
		ID relay.ConnID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &hello))
	require.NotEmpty(t, hello.ID)
	c.id = hello.ID
	return c
}

func (c *testClient) read() Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	var msg Message
	require.NoError(c.t, json.Unmarshal(data, &msg))
	return msg
}

// expect reads until event arrives, failing on timeout.
func (c *testClient) expect(event string) Message {
	c.t.Helper()
	for {
		msg := c.read()
		if msg.Event == event {
			return msg
		}
	}
}

func (c *testClient) emit(event string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(Message{Event: event, Data: raw}))
}

func (c *testClient) request(event string, data any) relay.Ack {
	c.t.Helper()
	c.ack++
	id := c.ack
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(Message{Event: event, Data: raw, Ack: &id}))

	for {
		msg := c.read()
		if msg.Event != EventAck {
			continue
		}
		require.NotNil(c.t, msg.Ack)
		require.Equal(c.t, id, *msg.Ack)
		var ack relay.Ack
		require.NoError(c.t, json.Unmarshal(msg.Data, &ack))
		return ack
	}
}

func (c *testClient) join(room, role string) relay.Ack {
	return c.request(relay.EventJoinRoom, map[string]string{"roomId": room, "role": role})
}

func players(t *testing.T, msg Message) []relay.ConnID {
	t.Helper()
	var update relay.PlayersUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &update))
	ids := make([]relay.ConnID, 0, len(update.Players))
	for _, p := range update.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestEndToEnd_HostAndGuest(t *testing.T) {
	server, hub := newTestServer(t, relay.Options{})

	host := dial(t, server)
	ack := host.join("abc", "host")
	assert.True(t, ack.OK)
	assert.Equal(t, "host", ack.Role)
	assert.Equal(t, []relay.ConnID{host.id}, players(t, host.expect(relay.EventPlayersUpdate)))

	guest := dial(t, server)
	ack = guest.join("abc", "guest")
	assert.True(t, ack.OK)
	assert.Equal(t, "guest", ack.Role)

	assert.ElementsMatch(t, []relay.ConnID{host.id, guest.id}, players(t, host.expect(relay.EventPlayersUpdate)))
	assert.ElementsMatch(t, []relay.ConnID{host.id, guest.id}, players(t, guest.expect(relay.EventPlayersUpdate)))
	assert.Equal(t, 2, hub.Count())

	host.emit(relay.EventUpdatePanel, map[string]any{"roomId": "abc", "panel": map[string]int{"step": 2}})
	panel := guest.expect(relay.EventUpdatePanel)
	assert.JSONEq(t, `{"panel":{"step":2}}`, string(panel.Data))

	choice := host.request(relay.EventChoice, map[string]any{"roomId": "abc", "value": true})
	assert.True(t, choice.OK)
	assert.JSONEq(t, `{"value":true}`, string(guest.expect(relay.EventChoice).Data))

	host.emit(relay.EventStartGame, map[string]string{"roomId": "abc"})
	host.expect(relay.EventStartGame)
	guest.expect(relay.EventStartGame)
}

func TestEndToEnd_GuestWithoutHost(t *testing.T) {
	server, _ := newTestServer(t, relay.Options{})

	guest := dial(t, server)
	ack := guest.join("abc", "guest")
	assert.False(t, ack.OK)
	assert.Equal(t, relay.CodeNoHost, ack.Code)
}

func TestEndToEnd_HostLeaves(t *testing.T) {
	server, _ := newTestServer(t, relay.Options{})

	host := dial(t, server)
	require.True(t, host.join("abc", "host").OK)
	guest := dial(t, server)
	require.True(t, guest.join("abc", "guest").OK)
	guest.expect(relay.EventPlayersUpdate)

	require.NoError(t, host.conn.Close())

	closed := guest.expect(relay.EventRoomClosed)
	var payload relay.RoomClosed
	require.NoError(t, json.Unmarshal(closed.Data, &payload))
	assert.Equal(t, relay.DefaultClosedMessage, payload.Message)

	next := dial(t, server)
	assert.True(t, next.join("abc", "host").OK, "room can be hosted again")
}

func TestEndToEnd_GuestLeaves(t *testing.T) {
	server, _ := newTestServer(t, relay.Options{})

	host := dial(t, server)
	require.True(t, host.join("abc", "host").OK)
	host.expect(relay.EventPlayersUpdate)
	guest := dial(t, server)
	require.True(t, guest.join("abc", "guest").OK)
	host.expect(relay.EventPlayersUpdate)

	require.NoError(t, guest.conn.Close())

	assert.Equal(t, []relay.ConnID{host.id}, players(t, host.expect(relay.EventPlayersUpdate)))
}

func TestEndToEnd_MalformedFrameIgnored(t *testing.T) {
	server, _ := newTestServer(t, relay.Options{})

	c := dial(t, server)
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	ack := c.join("abc", "host")
	assert.True(t, ack.OK, "connection survives a malformed frame")
}

func TestHubRunStopsOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

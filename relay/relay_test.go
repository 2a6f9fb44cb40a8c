package relay

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) (*Relay, *fakeGroups, *Metrics) {
	t.Helper()
	groups := newFakeGroups()
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewRelay(groups, NewMembershipView(groups), metrics), groups, metrics
}

func TestRelay_Scopes(t *testing.T) {
	tests := []struct {
		name      string
		send      func(*Relay)
		event     string
		wantRecv  map[ConnID]int
		wantCount float64
	}{
		{
			name:     "players-update reaches everyone",
			send:     func(r *Relay) { r.MembershipChanged("abc") },
			event:    EventPlayersUpdate,
			wantRecv: map[ConnID]int{"host": 1, "g1": 1, "g2": 1, "other": 0},
		},
		{
			name:     "start-game reaches everyone",
			send:     func(r *Relay) { r.GameStarted("abc") },
			event:    EventStartGame,
			wantRecv: map[ConnID]int{"host": 1, "g1": 1, "g2": 1, "other": 0},
		},
		{
			name:     "update-panel skips the sender",
			send:     func(r *Relay) { r.PanelUpdated("abc", "host", []byte(`2`)) },
			event:    EventUpdatePanel,
			wantRecv: map[ConnID]int{"host": 0, "g1": 1, "g2": 1, "other": 0},
		},
		{
			name:     "choice skips the sender",
			send:     func(r *Relay) { r.ChoiceMade("abc", "g1", []byte(`"A"`)) },
			event:    EventChoice,
			wantRecv: map[ConnID]int{"host": 1, "g1": 0, "g2": 1, "other": 0},
		},
		{
			name:     "room-closed reaches remaining members",
			send:     func(r *Relay) { r.RoomClosed("abc", "bye") },
			event:    EventRoomClosed,
			wantRecv: map[ConnID]int{"host": 1, "g1": 1, "g2": 1, "other": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, groups, metrics := newTestRelay(t)
			groups.Join("host", "abc")
			groups.Join("g1", "abc")
			groups.Join("g2", "abc")
			groups.Join("other", "xyz")

			tt.send(r)

			for conn, want := range tt.wantRecv {
				assert.Len(t, groups.eventsFor(conn, tt.event), want, "receiver %s", conn)
			}
			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.events.WithLabelValues(tt.event)))
		})
	}
}

func TestRelay_Payloads(t *testing.T) {
	r, groups, _ := newTestRelay(t)
	groups.Join("host", "abc")
	groups.Join("guest", "abc")

	t.Run("panel is passed through opaque", func(t *testing.T) {
		r.PanelUpdated("abc", "host", []byte(`{"step":3,"items":["x"]}`))
		got := groups.eventsFor("guest", EventUpdatePanel)
		require.Len(t, got, 1)
		assert.JSONEq(t, `{"panel":{"step":3,"items":["x"]}}`, string(got[0].payload))
	})

	t.Run("missing choice value becomes null", func(t *testing.T) {
		r.ChoiceMade("abc", "host", nil)
		got := groups.eventsFor("guest", EventChoice)
		require.Len(t, got, 1)
		assert.JSONEq(t, `{"value":null}`, string(got[0].payload))
	})

	t.Run("start-game has no payload", func(t *testing.T) {
		r.GameStarted("abc")
		got := groups.eventsFor("guest", EventStartGame)
		require.Len(t, got, 1)
		assert.Empty(t, got[0].payload)
	})

	t.Run("room-closed carries the reason", func(t *testing.T) {
		r.RoomClosed("abc", "host left")
		got := groups.eventsFor("guest", EventRoomClosed)
		require.Len(t, got, 1)
		var closed RoomClosed
		require.NoError(t, json.Unmarshal(got[0].payload, &closed))
		assert.Equal(t, "host left", closed.Message)
	})

	t.Run("players-update lists the group", func(t *testing.T) {
		r.MembershipChanged("abc")
		got := groups.eventsFor("host", EventPlayersUpdate)
		require.Len(t, got, 1)
		assert.Equal(t, []ConnID{"guest", "host"}, decodePlayers(t, got[0]))
	})
}

func TestRelay_NilMetrics(t *testing.T) {
	groups := newFakeGroups()
	r := NewRelay(groups, NewMembershipView(groups), nil)
	groups.Join("a", "abc")

	assert.NotPanics(t, func() { r.GameStarted("abc") })
	assert.Len(t, groups.eventsFor("a", EventStartGame), 1)
}

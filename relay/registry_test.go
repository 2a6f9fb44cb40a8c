package relay

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_TryRegisterHost(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Registry)
		room    RoomID
		conn    ConnID
		wantErr error
	}{
		{
			name:  "empty registry accepts",
			setup: func(r *Registry) {},
			room:  "abc",
			conn:  "h1",
		},
		{
			name: "second host rejected",
			setup: func(r *Registry) {
				require.NoError(t, r.TryRegisterHost("abc", "h1"))
			},
			room:    "abc",
			conn:    "h2",
			wantErr: ErrAlreadyOccupied,
		},
		{
			name: "same host twice rejected",
			setup: func(r *Registry) {
				require.NoError(t, r.TryRegisterHost("abc", "h1"))
			},
			room:    "abc",
			conn:    "h1",
			wantErr: ErrAlreadyOccupied,
		},
		{
			name: "other room unaffected",
			setup: func(r *Registry) {
				require.NoError(t, r.TryRegisterHost("abc", "h1"))
			},
			room: "xyz",
			conn: "h1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			tt.setup(r)

			err := r.TryRegisterHost(tt.room, tt.conn)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, r.IsHost(tt.room, tt.conn))
		})
	}
}

func TestRegistry_RejectedHostLeavesEntryUnchanged(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.TryRegisterHost("abc", "h1"))
	before, _ := r.Lookup("abc")

	assert.ErrorIs(t, r.TryRegisterHost("abc", "h2"), ErrAlreadyOccupied)

	after, ok := r.Lookup("abc")
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.False(t, r.IsHost("abc", "h2"))
}

func TestRegistry_RemoveIfHost(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.TryRegisterHost("abc", "h1"))

	assert.False(t, r.RemoveIfHost("abc", "g1"), "guest must not delete the room")
	assert.True(t, r.HostExists("abc"))

	assert.False(t, r.RemoveIfHost("missing", "h1"))

	assert.True(t, r.RemoveIfHost("abc", "h1"))
	assert.False(t, r.HostExists("abc"))
	assert.False(t, r.RemoveIfHost("abc", "h1"), "second removal is a no-op")

	require.NoError(t, r.TryRegisterHost("abc", "h2"), "room can be hosted again after closure")
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	_, ok := r.Lookup("abc")
	assert.False(t, ok)

	require.NoError(t, r.TryRegisterHost("abc", "h1"))
	room, ok := r.Lookup("abc")
	require.True(t, ok)
	assert.Equal(t, Room{ID: "abc", Host: "h1", CreatedAt: fixed}, room)
}

func TestRegistry_ListAndCount(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, r.TryRegisterHost("second", "h1"))
	require.NoError(t, r.TryRegisterHost("third", "h2"))
	require.NoError(t, r.TryRegisterHost("fourth", "h3"))

	rooms := r.List()
	require.Len(t, rooms, 3)
	assert.Equal(t, RoomID("second"), rooms[0].ID)
	assert.Equal(t, RoomID("third"), rooms[1].ID)
	assert.Equal(t, RoomID("fourth"), rooms[2].ID)
	assert.Equal(t, 3, r.Count())
}

func TestRegistry_ConcurrentHostJoins(t *testing.T) {
	r := NewRegistry()
	const attempts = 64

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.TryRegisterHost("contested", ConnID(fmt.Sprintf("h%d", i))) == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted, "exactly one host may win a room")
	assert.Equal(t, 1, r.Count())
}

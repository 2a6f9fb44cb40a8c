package relay

import (
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type emitted struct {
	to      ConnID
	event   string
	payload []byte
}

// fakeGroups is an in-memory Groups that records what every connection received.
type fakeGroups struct {
	groups   map[RoomID]map[ConnID]bool
	received map[ConnID][]emitted
	mu       sync.Mutex
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{
		groups:   make(map[RoomID]map[ConnID]bool),
		received: make(map[ConnID][]emitted),
	}
}

func (f *fakeGroups) Join(conn ConnID, room RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groups[room] == nil {
		f.groups[room] = make(map[ConnID]bool)
	}
	f.groups[room][conn] = true
}

func (f *fakeGroups) Leave(conn ConnID, room RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups[room], conn)
	if len(f.groups[room]) == 0 {
		delete(f.groups, room)
	}
}

func (f *fakeGroups) Members(room RoomID) []ConnID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ConnID
	for id := range f.groups[room] {
		out = append(out, id)
	}
	return out
}

func (f *fakeGroups) RoomsOf(conn ConnID) []RoomID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RoomID
	for room, members := range f.groups {
		if members[conn] {
			out = append(out, room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeGroups) Emit(room RoomID, except ConnID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var data []byte
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	for id := range f.groups[room] {
		if id == except {
			continue
		}
		f.received[id] = append(f.received[id], emitted{to: id, event: event, payload: data})
	}
}

func (f *fakeGroups) eventsFor(conn ConnID, event string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.received[conn] {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeGroups) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = make(map[ConnID][]emitted)
}

func decodePlayers(t *testing.T, e emitted) []ConnID {
	t.Helper()
	var update PlayersUpdate
	require.NoError(t, json.Unmarshal(e.payload, &update))
	ids := make([]ConnID, 0, len(update.Players))
	for _, p := range update.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

package relay

import (
	"sort"
	"sync"
	"time"
)

// Registry maps each open room to its single host connection
type Registry struct {
	rooms map[RoomID]*Room
	now   func() time.Time
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[RoomID]*Room),
		now:   time.Now,
	}
}

// TryRegisterHost makes conn the host of room. It returns ErrAlreadyOccupied
// if the room already has a host, including when that host is conn itself.
func (r *Registry) TryRegisterHost(room RoomID, conn ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[room]; exists {
		return ErrAlreadyOccupied
	}

	r.rooms[room] = &Room{
		ID:        room,
		Host:      conn,
		CreatedAt: r.now(),
	}
	return nil
}

// HostExists reports whether room is open
func (r *Registry) HostExists(room RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.rooms[room]
	return exists
}

// IsHost reports whether conn is the registered host of room
func (r *Registry) IsHost(room RoomID, conn ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, exists := r.rooms[room]
	return exists && entry.Host == conn
}

// RemoveIfHost deletes the room entry if conn is its host and reports
// whether a deletion happened.
func (r *Registry) RemoveIfHost(room RoomID, conn ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.rooms[room]
	if !exists || entry.Host != conn {
		return false
	}
	delete(r.rooms, room)
	return true
}

// Lookup returns a copy of the room entry, if the room is open
func (r *Registry) Lookup(room RoomID) (Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, exists := r.rooms[room]
	if !exists {
		return Room{}, false
	}
	return *entry, true
}

// List returns all open rooms ordered by creation time, then id
func (r *Registry) List() []Room {
	r.mu.RLock()
	result := make([]Room, 0, len(r.rooms))
	for _, entry := range r.rooms {
		result = append(result, *entry)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Count returns the number of open rooms
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

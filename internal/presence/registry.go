// Package presence tracks which live connection sits in which room.
// The registry is process-lifetime state: it starts empty and every
// client re-joins after a restart.
package presence

import (
	"fmt"
	"sort"
	"sync"

	"veranda/internal/models"
)

type Entry struct {
	RoomID string
	UserID string
}

type Registry struct {
	byConn map[string]Entry
	byRoom map[string]map[string]struct{}

	mu sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]Entry),
		byRoom: make(map[string]map[string]struct{}),
	}
}

// Register puts a connection into a room. A connection holds at most one
// membership, switching rooms requires Unregister first.
func (r *Registry) Register(connID, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byConn[connID]; ok {
		return fmt.Errorf("%w: connection %s already in room %s", models.ErrProtocolViolation, connID, existing.RoomID)
	}

	r.byConn[connID] = Entry{RoomID: roomID, UserID: userID}
	members, ok := r.byRoom[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.byRoom[roomID] = members
	}
	members[connID] = struct{}{}
	return nil
}

// Unregister removes the connection and returns the entry it had.
// Only the first call for a membership reports ok.
func (r *Registry) Unregister(connID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byConn[connID]
	if !ok {
		return Entry{}, false
	}
	delete(r.byConn, connID)
	if members, ok := r.byRoom[entry.RoomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.byRoom, entry.RoomID)
		}
	}
	return entry, true
}

func (r *Registry) Lookup(connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byConn[connID]
	return e, ok
}

func (r *Registry) ConnectionsInRoom(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.byRoom[roomID]
	conns := make([]string, 0, len(members))
	for id := range members {
		conns = append(conns, id)
	}
	return conns
}

// UsersInRoom returns the distinct users present in the room, sorted.
func (r *Registry) UsersInRoom(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for connID := range r.byRoom[roomID] {
		seen[r.byConn[connID].UserID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// IsPresent reports whether the user has at least one connection in the room.
func (r *Registry) IsPresent(roomID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for connID := range r.byRoom[roomID] {
		if r.byConn[connID].UserID == userID {
			return true
		}
	}
	return false
}

// Package registry owns the room membership state: which connections are in
// which room and under what display name. Every mutation goes through the
// Registry; transports only ask it questions or request changes.
package registry

import (
	"sync"

	"github.com/sachinggsingh/synceditor-relay/internal/domain"
)

// Conn is the write half of a client connection as the registry sees it.
// Implemented by the ws transport.
type Conn interface {
	ID() string
	Send(evt Event) error
}

// Event is the unit of fan-out: a wire event name plus its payload. The
// registry and router treat the payload as opaque.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Eviction describes one room a disconnected connection was removed from,
// with the members that are still there. One per affected room, so the caller
// can notify each of them.
type Eviction struct {
	RoomID    string
	Username  string
	Remaining []domain.Member
}

type Registry struct {
	mu sync.RWMutex

	maxMembers int

	// roomID -> set of connection ids
	rooms map[string]map[string]struct{}
	// connID -> set of room ids (обратный индекс для evict)
	joined map[string]map[string]struct{}
	conns  map[string]Conn
	names  map[string]string
}

func New(maxMembers int) *Registry {
	if maxMembers <= 0 {
		maxMembers = 5
	}
	return &Registry{
		maxMembers: maxMembers,
		rooms:      make(map[string]map[string]struct{}),
		joined:     make(map[string]map[string]struct{}),
		conns:      make(map[string]Conn),
		names:      make(map[string]string),
	}
}

// Admit adds conn to the room under username, creating the room on first join.
// The capacity check and the insert happen under one lock, so two joins racing
// for the last seat cannot both win. On success it returns the member list as
// it stands after admission.
func (r *Registry) Admit(roomID string, conn Conn, username string) ([]domain.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if ok {
		if _, already := members[conn.ID()]; !already && len(members) >= r.maxMembers {
			return nil, domain.ErrRoomFull
		}
	} else {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}

	members[conn.ID()] = struct{}{}
	if r.joined[conn.ID()] == nil {
		r.joined[conn.ID()] = make(map[string]struct{})
	}
	r.joined[conn.ID()][roomID] = struct{}{}
	r.conns[conn.ID()] = conn
	r.names[conn.ID()] = username

	return r.membersLocked(roomID), nil
}

// ListMembers returns a snapshot of the room; empty if the room is unknown.
func (r *Registry) ListMembers(roomID string) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked(roomID)
}

// Leave removes the connection from one room only and returns the remaining
// member list of that room. The connection itself stays registered: an
// explicit leave is not a disconnect.
func (r *Registry) Leave(roomID, connID string) []domain.Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeFromRoomLocked(roomID, connID)
	return r.membersLocked(roomID)
}

// Evict removes the connection from every room it belongs to and forgets its
// name and handle. Idempotent: evicting an unknown connection returns nil.
func (r *Registry) Evict(connID string) []Eviction {
	r.mu.Lock()
	defer r.mu.Unlock()

	username := r.names[connID]

	var out []Eviction
	for roomID := range r.joined[connID] {
		r.removeFromRoomLocked(roomID, connID)
		out = append(out, Eviction{
			RoomID:    roomID,
			Username:  username,
			Remaining: r.membersLocked(roomID),
		})
	}

	delete(r.joined, connID)
	delete(r.conns, connID)
	delete(r.names, connID)
	return out
}

// InRoom reports whether the connection is currently a member of the room.
func (r *Registry) InRoom(roomID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][connID]
	return ok
}

// Lookup resolves a connection id to its live handle, for unicast delivery.
func (r *Registry) Lookup(connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// Username returns the display name recorded at join time, or "".
func (r *Registry) Username(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[connID]
}

// RoomCount reports how many rooms currently have members. Empty rooms are
// pruned eagerly, so this is also a leak check.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) removeFromRoomLocked(roomID, connID string) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if rooms, ok := r.joined[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.joined, connID)
		}
	}
}

func (r *Registry) membersLocked(roomID string) []domain.Member {
	members := r.rooms[roomID]
	out := make([]domain.Member, 0, len(members))
	for connID := range members {
		out = append(out, domain.Member{
			SocketID: connID,
			Username: r.names[connID],
		})
	}
	return out
}

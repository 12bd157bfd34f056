package collab

import (
	"sort"
	"sync"

	domain "github.com/example/code-collab-demo/domain/collab"
)

// Registry provides thread-safe storage of room memberships and document
// snapshots. Rooms exist implicitly: joining an unknown room creates it, and
// a room whose member set becomes empty is pruned.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]bool  // roomID -> set of member names
	docs  map[string]*domain.Document // roomID -> last-known buffer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]bool),
		docs:  make(map[string]*domain.Document),
	}
}

// Join adds userName to the room's member set, creating the room if needed,
// and returns the updated membership. Joining twice with the same name is a
// no-op beyond set semantics: identity is the name string, not the
// connection, so duplicate names collapse to one entry.
func (r *Registry) Join(roomID, userName string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.rooms[roomID]
	if !exists {
		members = make(map[string]bool)
		r.rooms[roomID] = members
		r.docs[roomID] = &domain.Document{}
	}
	members[userName] = true
	return memberList(members)
}

// Leave removes userName from the room's member set and returns the updated
// membership plus whether a removal actually happened. The check and the
// removal are one critical section, so two racing leaves of the same user
// report at most one removal. Removing an absent member, or from an absent
// room, is a no-op. The last member leaving prunes the room and its document
// snapshot.
func (r *Registry) Leave(roomID, userName string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.rooms[roomID]
	if !exists || !members[userName] {
		return memberList(members), false
	}
	delete(members, userName)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		delete(r.docs, roomID)
		return []string{}, true
	}
	return memberList(members), true
}

// Members returns the current membership of a room, empty if unknown.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, exists := r.rooms[roomID]
	if !exists {
		return []string{}
	}
	return memberList(members)
}

// HasMember reports whether userName is currently in the room.
func (r *Registry) HasMember(roomID, userName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID][userName]
}

// SetCode records a new buffer snapshot for an active room.
func (r *Registry) SetCode(roomID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, exists := r.docs[roomID]; exists {
		doc.Code = code
	}
}

// SetLanguage records a new language selection for an active room.
func (r *Registry) SetLanguage(roomID, language string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, exists := r.docs[roomID]; exists {
		doc.Language = language
	}
}

// Snapshot returns the last-known buffer of a room.
func (r *Registry) Snapshot(roomID string) (domain.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, exists := r.docs[roomID]
	if !exists {
		return domain.Document{}, false
	}
	return *doc, true
}

// Rooms returns all active rooms with their memberships.
func (r *Registry) Rooms() []domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Room, 0, len(r.rooms))
	for id, members := range r.rooms {
		result = append(result, domain.Room{ID: id, Members: memberList(members)})
	}
	return result
}

// RoomCount returns the number of active rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// memberList flattens a member set into a sorted slice. Callers hold r.mu.
func memberList(members map[string]bool) []string {
	result := make([]string, 0, len(members))
	for name := range members {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

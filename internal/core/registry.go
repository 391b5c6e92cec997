package core

import "sync"

// Registry is the process-wide concurrent mapping from room code to Room. One
// instance is constructed at startup and passed by handle into every session;
// there is no package-level singleton. Each operation is individually safe
// under concurrent callers, but no transaction spans two operations.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// RoomInfo is one entry of a List snapshot.
type RoomInfo struct {
	Code    string `json:"code"`
	Members int64  `json:"members"`
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Insert adds room under code. The caller is expected to have produced code
// via the unique-code procedure; on a key collision the last writer wins.
func (g *Registry) Insert(code string, room *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms[code] = room
}

// Get returns the room registered under code, if any.
func (g *Registry) Get(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[code]
	return room, ok
}

// Contains reports whether code is currently registered. Satisfies
// codegen.Registry.
func (g *Registry) Contains(code string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.rooms[code]
	return ok
}

// RemoveIfEmpty removes and closes the room under code if its member count
// snapshot is exactly zero. The count read and the removal happen under the
// registry lock, but a join increments the counter without holding it, so a
// room can still be reaped just after a joiner incremented and before it
// subscribed; the joiner then observes "room closed". Accepted, see DESIGN.md.
func (g *Registry) RemoveIfEmpty(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[code]
	if !ok || room.Members() != 0 {
		return
	}
	delete(g.rooms, code)
	room.Close()
}

// List returns a snapshot of (code, member count) pairs for diagnostics. The
// snapshot may be stale by the time it is returned.
func (g *Registry) List() []RoomInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	infos := make([]RoomInfo, 0, len(g.rooms))
	for code, room := range g.rooms {
		infos = append(infos, RoomInfo{Code: code, Members: room.Members()})
	}
	return infos
}

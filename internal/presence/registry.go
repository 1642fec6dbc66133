// Package presence tracks which live connection currently represents each
// user identity.
package presence

import "sync"

// Conn is a live connection handle as seen by the registry and the router.
// Push must not block; it reports whether the event was queued.
type Conn interface {
	ConnID() string
	Push(eventType string, payload any) bool
}

// Registry maps a user identity to its single active connection.
// Last registration wins; the superseded connection is left untouched.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uint]Conn
	byConn map[Conn]uint
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[uint]Conn),
		byConn: make(map[Conn]uint),
	}
}

// Register maps userID to conn and returns the handle it replaced, if any.
func (r *Registry) Register(userID uint, conn Conn) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.byUser[userID]
	if had && prev != conn {
		delete(r.byConn, prev)
	}
	r.byUser[userID] = conn
	r.byConn[conn] = userID

	if had && prev == conn {
		return nil, false
	}
	return prev, had
}

// Unregister removes conn's mapping if it is still the current one for its
// identity. It reports whether a mapping was removed.
func (r *Registry) Unregister(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[conn]
	if !ok {
		return false
	}
	delete(r.byConn, conn)
	if current, ok := r.byUser[userID]; ok && current == conn {
		delete(r.byUser, userID)
		return true
	}
	return false
}

// Lookup returns the active connection for userID
func (r *Registry) Lookup(userID uint) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

// IsOnline reports whether userID has an active connection
func (r *Registry) IsOnline(userID uint) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Size returns the number of online identities
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Snapshot returns a copy of the current mapping.
func (r *Registry) Snapshot() map[uint]Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uint]Conn, len(r.byUser))
	for id, conn := range r.byUser {
		out[id] = conn
	}
	return out
}

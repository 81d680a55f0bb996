package realtime

import "sync"

// SessionRegistry is the process-wide table mapping a user's email to the ID
// of their current websocket connection. It holds at most one entry per
// email: a reconnect overwrites the previous handle rather than adding a
// second one, so concurrent logins from the same identity collapse to the
// latest connection.
//
// All operations are fast, in-memory, and safe for concurrent use.
type SessionRegistry struct {
	mu      sync.RWMutex
	byEmail map[string]string // email -> connection ID
	byConn  map[string]string // connection ID -> email
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byEmail: make(map[string]string),
		byConn:  make(map[string]string),
	}
}

// Register records connID as the current handle for email, silently
// replacing any previous entry for the same email. The replaced connection
// is not closed here; its own disconnect path cleans it up.
func (r *SessionRegistry) Register(email, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byEmail[email]; ok {
		delete(r.byConn, old)
	}
	r.byEmail[email] = connID
	r.byConn[connID] = email
}

// Unregister removes the entry for connID, but only while it is still the
// current handle for its email. A stale handle, replaced by a newer
// registration before the disconnect was processed, is a no-op, as is a
// handle that was never registered. Safe to call repeatedly.
func (r *SessionRegistry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email, ok := r.byConn[connID]
	if !ok {
		return
	}
	if r.byEmail[email] != connID {
		return
	}
	delete(r.byEmail, email)
	delete(r.byConn, connID)
}

// Lookup returns the current connection ID for email, if any.
func (r *SessionRegistry) Lookup(email string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.byEmail[email]
	return connID, ok
}

// Len reports the number of active sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEmail)
}

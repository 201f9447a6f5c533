package realtime

import (
	"cmp"
	"slices"
	"sync"
)

// session is the registry entry for one user.
type session struct {
	conn   Conn
	status Status
}

// SessionRegistry maps each user to at most one live connection.
//
// The last authentication wins: registering a second connection for a user replaces the
// first, and the replaced connection is no longer of record. Unregistering a connection
// that is not of record is a no-op.
type SessionRegistry struct {
	mu     sync.RWMutex
	byUser map[UserID]*session
	byConn map[ConnID]UserID
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byUser: make(map[UserID]*session),
		byConn: make(map[ConnID]UserID),
	}
}

// Registration describes what a Register call displaced.
type Registration struct {
	// Replaced is the user's previous connection of record, if any.
	Replaced Conn
	// Displaced is the user conn was authenticated as before, valid when Switched.
	Displaced UserID
	Switched  bool
}

// Register records conn as the connection of user. Re-registering the same connection
// is allowed and keeps its status. When conn was of record for a different user, that
// user is no longer registered and is reported as Displaced.
func (r *SessionRegistry) Register(user UserID, conn Conn) (reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prevUser, ok := r.byConn[conn.ID()]; ok && prevUser != user {
		delete(r.byUser, prevUser)
		reg.Displaced, reg.Switched = prevUser, true
	}

	if prev, ok := r.byUser[user]; ok {
		if prev.conn.ID() == conn.ID() {
			prev.conn = conn
			return reg
		}
		delete(r.byConn, prev.conn.ID())
		reg.Replaced = prev.conn
	}

	r.byUser[user] = &session{conn: conn, status: StatusOnline}
	r.byConn[conn.ID()] = user
	return reg
}

// Unregister removes the user whose connection of record is id. It reports the user and
// whether anything was removed.
func (r *SessionRegistry) Unregister(id ConnID) (UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byConn[id]
	if !ok {
		return 0, false
	}
	delete(r.byConn, id)
	delete(r.byUser, user)
	return user, true
}

// Lookup returns the live connection of user.
func (r *SessionRegistry) Lookup(user UserID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byUser[user]
	if !ok {
		return nil, false
	}
	return s.conn, true
}

// UserOf returns the user that id is the connection of record for.
func (r *SessionRegistry) UserOf(id ConnID) (UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byConn[id]
	return user, ok
}

// SetStatus stores the presence status reported by user. It returns false when the
// user is not connected.
func (r *SessionRegistry) SetStatus(user UserID, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byUser[user]
	if !ok {
		return false
	}
	s.status = status
	return true
}

// Status returns the last status reported by user, or StatusOffline.
func (r *SessionRegistry) Status(user UserID) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.byUser[user]; ok {
		return s.status
	}
	return StatusOffline
}

// ConnectedUserIDs returns the connected users in ascending order.
func (r *SessionRegistry) ConnectedUserIDs() []UserID {
	r.mu.RLock()
	ids := make([]UserID, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// IsOnline reports whether user has a registered connection.
func (r *SessionRegistry) IsOnline(user UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUser[user]
	return ok
}

// Count returns the number of connected users.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// peer is a snapshot entry used for fan-out outside the lock.
type peer struct {
	user UserID
	conn Conn
}

// snapshot copies the current sessions, excluding one user, ordered by user id.
func (r *SessionRegistry) snapshot(exclude UserID) []peer {
	r.mu.RLock()
	peers := make([]peer, 0, len(r.byUser))
	for id, s := range r.byUser {
		if id == exclude {
			continue
		}
		peers = append(peers, peer{user: id, conn: s.conn})
	}
	r.mu.RUnlock()

	slices.SortFunc(peers, func(a, b peer) int { return cmp.Compare(a.user, b.user) })
	return peers
}

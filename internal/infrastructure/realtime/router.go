package realtime

import (
	"sync"

	"brunox-chat/internal/infrastructure/metrics"
	chat "brunox-chat/internal/pkg/chat/domain"
)

// Router tracks the live socket of each user. One active Connection per user:
// attaching a new one replaces and closes the previous socket.
type Router struct {
	mu           sync.RWMutex
	sessions     map[string]*Connection // sessionID -> connection
	userSessions map[string]string      // userID -> sessionID
}

// NewRouter constructs an initialized Router.
func NewRouter() *Router {
	return &Router{
		sessions:     make(map[string]*Connection),
		userSessions: make(map[string]string),
	}
}

// Attach registers conn and starts its write loop.
func (r *Router) Attach(conn *Connection) {
	var previous *Connection

	r.mu.Lock()
	if existingID, ok := r.userSessions[conn.UserID]; ok {
		previous = r.sessions[existingID]
		r.detachLocked(existingID)
	}
	r.sessions[conn.ID] = conn
	r.userSessions[conn.UserID] = conn.ID
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.Close(CloseSessionReplaced, "session replaced")
	}
}

// Detach removes conn if it is still tracked.
func (r *Router) Detach(conn *Connection) {
	r.mu.Lock()
	r.detachLocked(conn.ID)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
}

// Lookup returns the current connection of userID.
func (r *Router) Lookup(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.userSessions[userID]
	if !ok {
		return nil, false
	}
	conn, ok := r.sessions[sessionID]
	return conn, ok
}

// Signer returns the wallet reachable over the user's live socket, or nil.
func (r *Router) Signer(userID string) chat.Signer {
	conn, ok := r.Lookup(userID)
	if !ok || conn.Wallet == nil {
		return nil
	}
	return conn.Wallet
}

// NotifyUser delivers payload to the current connection of the given user.
func (r *Router) NotifyUser(userID string, payload []byte) bool {
	conn, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	return conn.Send(payload) == nil
}

// Count returns the number of attached connections.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close terminates all tracked connections and clears router state.
func (r *Router) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.sessions))
	for _, conn := range r.sessions {
		conns = append(conns, conn)
	}
	r.sessions = make(map[string]*Connection)
	r.userSessions = make(map[string]string)
	metrics.ActiveSessions.Set(0)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(CloseRouterShutdown, "router shutdown")
	}
}

func (r *Router) detachLocked(sessionID string) {
	conn, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	if current, ok := r.userSessions[conn.UserID]; ok && current == sessionID {
		delete(r.userSessions, conn.UserID)
	}
}

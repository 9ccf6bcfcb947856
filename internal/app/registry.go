package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quiz-live-service/internal/domain"
)

// ConnInfo is the registry's view of one transport session. The output
// channel is held separately by the registry; session state only ever
// carries the session id back-reference.
type ConnInfo struct {
	SessionID string
	UserID    *int64
	PlayerID  *int64
	GameID    *int64
	GameCode  string
	Role      domain.Role
	LastSeen  time.Time
}

type registeredConn struct {
	info ConnInfo
	send chan []byte
}

// Registry maps opaque session ids to live connection metadata and the
// buffered channel its write pump drains. Delivery never blocks and
// never fails the caller; a dead or slow peer only loses its own
// messages. The registry owns send-channel closure: Remove (and a
// Register that displaces an entry) closes the channel under the write
// lock, and all sends happen under the read lock, so no send can race
// the close.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*registeredConn
	log   zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		conns: make(map[string]*registeredConn),
		log:   log.With().Str("component", "registry").Logger(),
	}
}

// Register adds a connection. Any prior entry for the id is displaced
// and its send channel closed, so the old write pump exits.
func (r *Registry) Register(info ConnInfo, send chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.conns[info.SessionID]; ok {
		close(prev.send)
	}
	r.conns[info.SessionID] = &registeredConn{info: info, send: send}
}

// Update applies a mutator to a connection's metadata.
func (r *Registry) Update(sessionID string, fn func(*ConnInfo)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[sessionID]
	if !ok {
		return false
	}
	fn(&conn.info)
	return true
}

// Touch bumps the connection's last-activity timestamp.
func (r *Registry) Touch(sessionID string, at time.Time) {
	r.Update(sessionID, func(info *ConnInfo) { info.LastSeen = at })
}

// Remove drops a connection and closes its send channel. Closing under
// the write lock is what lets Send and Broadcast queue payloads under
// the read lock without ever racing the close.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[sessionID]
	if !ok {
		return
	}
	close(conn.send)
	delete(r.conns, sessionID)
}

func (r *Registry) Get(sessionID string) (ConnInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[sessionID]
	if !ok {
		return ConnInfo{}, false
	}
	return conn.info, true
}

// SessionIDForUser resolves the session currently held by an
// authenticated user. This is the single lookup host checks go through.
func (r *Registry) SessionIDForUser(userID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, conn := range r.conns {
		if conn.info.UserID != nil && *conn.info.UserID == userID {
			return id, true
		}
	}
	return "", false
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send queues a payload for one connection. Unknown recipients and full
// buffers are logged and skipped, never propagated. The non-blocking
// queue happens under the read lock; it never blocks, so no network
// write is ever held under the lock.
func (r *Registry) Send(sessionID string, payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[sessionID]
	if !ok {
		return
	}
	select {
	case conn.send <- payload:
	default:
		r.log.Warn().Str("session_id", sessionID).Msg("send buffer full, dropping message")
	}
}

// Broadcast queues a payload for each recipient, skipping any not
// currently registered. Like Send, queuing stays under the read lock so
// a concurrent Remove cannot close a channel mid-send.
func (r *Registry) Broadcast(sessionIDs []string, payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range sessionIDs {
		conn, ok := r.conns[id]
		if !ok {
			continue
		}
		select {
		case conn.send <- payload:
		default:
			r.log.Warn().Str("session_id", id).Msg("send buffer full, dropping broadcast")
		}
	}
}

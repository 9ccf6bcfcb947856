package app

import (
	"sync"
	"time"

	"quiz-live-service/internal/domain"
)

// SessionStore is the in-memory table of live game sessions, keyed by
// game code. One coarse mutex guards the table and every session in it;
// closures passed to Mutate and View run under that lock and must not
// perform I/O.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*GameSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*GameSession)}
}

// Upsert returns the session for code, creating it from the factory if
// absent. At most one session ever exists per code.
func (s *SessionStore) Upsert(code string, create func() *GameSession) *GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[code]; ok {
		return session
	}
	session := create()
	s.sessions[code] = session
	return session
}

// Mutate runs fn against the session under the table lock. Returns
// domain.ErrGameNotFound when no session exists for the code.
func (s *SessionStore) Mutate(code string, fn func(*GameSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	if !ok {
		return domain.ErrGameNotFound
	}
	return fn(session)
}

// View runs fn read-only under the table lock.
func (s *SessionStore) View(code string, fn func(*GameSession)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	if !ok {
		return false
	}
	fn(session)
	return true
}

// Delete evicts a session, typically right after its final broadcast.
func (s *SessionStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
}

// ExpiredQuestionCodes snapshots the codes of sessions whose active
// question has run out of time. The caller transitions each one after
// this lock is released; a session that vanished in between is a no-op.
func (s *SessionStore) ExpiredQuestionCodes(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var codes []string
	for code, session := range s.sessions {
		if session.expiredLocked(now) {
			codes = append(codes, code)
		}
	}
	return codes
}

// FindByParticipant locates the session a connection belongs to, either
// as a player or as the pinned host connection.
func (s *SessionStore) FindByParticipant(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, session := range s.sessions {
		if session.HostSessionID == sessionID {
			return code, true
		}
		if _, ok := session.Players[sessionID]; ok {
			return code, true
		}
	}
	return "", false
}

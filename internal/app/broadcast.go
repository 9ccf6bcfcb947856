package app

import (
	"github.com/rs/zerolog"

	"quiz-live-service/internal/protocol"
)

// Dispatcher serializes outbound messages once and fans them out via
// the registry. Recipient lists are snapshotted under the store lock;
// the actual sends happen lock-free.
type Dispatcher struct {
	registry *Registry
	sessions *SessionStore
	log      zerolog.Logger
}

func NewDispatcher(registry *Registry, sessions *SessionStore, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		sessions: sessions,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
}

// ToGame delivers to every active player of the session plus its host.
// Connections no longer in the registry are skipped silently.
func (d *Dispatcher) ToGame(code string, msg protocol.Outbound) {
	var recipients []string
	found := d.sessions.View(code, func(g *GameSession) {
		d.resolveHostLocked(g)
		recipients = g.recipientsLocked()
	})
	if !found {
		return
	}
	payload, err := protocol.Encode(msg)
	if err != nil {
		d.log.Error().Err(err).Str("game_code", code).Msg("encode broadcast")
		return
	}
	d.registry.Broadcast(recipients, payload)
}

// ToConn delivers to a single connection.
func (d *Dispatcher) ToConn(sessionID string, msg protocol.Outbound) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		d.log.Error().Err(err).Str("session_id", sessionID).Msg("encode message")
		return
	}
	d.registry.Send(sessionID, payload)
}

// resolveHostLocked lazily pins the host's current session id when the
// host connected after the in-memory session was created.
func (d *Dispatcher) resolveHostLocked(g *GameSession) {
	if g.HostSessionID != "" {
		return
	}
	if id, ok := d.registry.SessionIDForUser(g.HostUserID); ok {
		g.HostSessionID = id
	}
}

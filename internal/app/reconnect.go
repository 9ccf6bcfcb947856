package app

import (
	"context"
	"fmt"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/protocol"
)

// Reconnect reconciles a fresh connection with a previously
// disconnected player's durable record: in-memory state migrates to the
// new key with score and answer history intact, the record is
// reactivated under the new session id, and the client is replayed the
// current phase, question, own answer, and leaderboard. The durable
// write only happens once the migration has succeeded, so a vanished
// session never leaves the row active under a session id nothing holds.
func (e *Engine) Reconnect(ctx context.Context, newSessionID string, msg protocol.Reconnect) error {
	player, err := e.store.PlayerBySession(ctx, msg.OldSessionID)
	if err != nil {
		return err
	}
	if player.IsActive {
		return domain.ErrSessionActive
	}

	game, err := e.store.GameByID(ctx, player.GameID)
	if err != nil {
		return fmt.Errorf("load game for reconnect: %w", err)
	}

	now := e.clock.Now()
	var (
		phase       domain.Phase
		current     *domain.Question
		number      int
		total       int
		timeLimit   int
		ownAnswer   *domain.Answer
		score       int
		leaderboard []domain.LeaderboardEntry
	)
	err = e.sessions.Mutate(game.Code, func(g *GameSession) error {
		state, ok := g.Players[msg.OldSessionID]
		if ok {
			delete(g.Players, msg.OldSessionID)
		} else {
			// Session outlived the in-memory entry; rebuild from the
			// durable row, answer history is gone with the process.
			state = &PlayerState{
				PlayerID: player.ID,
				UserID:   player.UserID,
				Nickname: player.Nickname,
				Score:    player.Score,
				Answers:  make(map[int64]domain.Answer),
				JoinedAt: player.JoinedAt,
			}
		}
		state.SessionID = newSessionID
		state.IsActive = true
		state.LastSeen = now
		g.Players[newSessionID] = state

		phase = g.Phase
		if g.Current != nil {
			q := *g.Current
			current = &q
			number = g.CurrentIndex + 1
			total = g.TotalQuestions
			timeLimit = e.timeLimitFor(q)
			if a, ok := state.Answers[q.ID]; ok {
				answer := a
				ownAnswer = &answer
			}
		}
		score = state.Score
		leaderboard = g.leaderboardLocked()
		return nil
	})
	if err != nil {
		// The session is gone; leave the durable row inactive rather
		// than reactivating a player into a game no longer running.
		return err
	}

	if err := e.store.ReactivatePlayer(ctx, player.ID, newSessionID); err != nil {
		return fmt.Errorf("reactivate player: %w", err)
	}

	e.registry.Update(newSessionID, func(c *ConnInfo) {
		c.UserID = player.UserID
		c.PlayerID = &player.ID
		c.GameID = &player.GameID
		c.GameCode = game.Code
		c.Role = domain.RolePlayer
	})
	e.registry.Remove(msg.OldSessionID)

	e.log.Info().
		Str("old_session_id", msg.OldSessionID).
		Str("session_id", newSessionID).
		Str("game_code", game.Code).
		Int64("player_id", player.ID).
		Msg("player reconnected")

	e.dispatch.ToConn(newSessionID, protocol.NewReconnectSuccess(player.ID, game.Code, player.Nickname, score, phase, leaderboard))
	if current != nil && phase != domain.PhaseEnded {
		// Re-sent without the answer key, same as the public broadcast.
		e.dispatch.ToConn(newSessionID, protocol.NewQuestionStart(*current, number, total, timeLimit))
		if ownAnswer != nil {
			e.dispatch.ToConn(newSessionID, protocol.NewAnswerReceived(*ownAnswer))
		}
	}
	return nil
}

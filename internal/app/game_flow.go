package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/protocol"
)

// StartGame moves a lobby into play. Host-only; broadcasts game_started
// and chains straight into the first question.
func (e *Engine) StartGame(ctx context.Context, sessionID string, msg protocol.StartGame) error {
	game, err := e.store.GameByCode(ctx, msg.GameCode)
	if err != nil {
		return err
	}
	if err := e.claimHost(sessionID, game); err != nil {
		return err
	}
	if game.Status != domain.StatusLobby {
		return domain.ErrGameAlreadyStarted
	}

	now := e.clock.Now()
	if err := e.store.MarkStarted(ctx, game.ID, now); err != nil {
		return fmt.Errorf("mark started: %w", err)
	}
	_ = e.sessions.Mutate(game.Code, func(g *GameSession) error {
		g.StartedAt = now
		return nil
	})

	e.log.Info().Str("game_code", game.Code).Msg("game started")
	e.dispatch.ToGame(game.Code, protocol.NewGameStarted(game.Code))

	return e.advance(ctx, game)
}

// NextQuestion advances the session to the next question, or ends the
// game when none remains. Host-only.
func (e *Engine) NextQuestion(ctx context.Context, sessionID string, msg protocol.NextQuestion) error {
	game, err := e.store.GameByCode(ctx, msg.GameCode)
	if err != nil {
		return err
	}
	if err := e.claimHost(sessionID, game); err != nil {
		return err
	}
	return e.advance(ctx, game)
}

// claimHost verifies the connection belongs to the game's host and pins
// the session's host session id to it. Going through the registry's
// user lookup once here avoids racing a host reconnect against its own
// stale session id.
func (e *Engine) claimHost(sessionID string, game domain.Game) error {
	info, ok := e.registry.Get(sessionID)
	if !ok || info.UserID == nil || *info.UserID != game.HostUserID {
		return domain.ErrNotHost
	}
	e.registry.Update(sessionID, func(c *ConnInfo) {
		c.GameID = &game.ID
		c.GameCode = game.Code
		c.Role = domain.RoleHost
	})
	// The in-memory session may not exist yet; pinning is best effort.
	_ = e.sessions.Mutate(game.Code, func(g *GameSession) error {
		g.HostSessionID = sessionID
		return nil
	})
	return nil
}

// advance implements the shared lobby/review -> question transition.
// The question index only ever moves forward; running past the last
// question ends the game instead.
func (e *Engine) advance(ctx context.Context, game domain.Game) error {
	var nextIndex int
	err := e.sessions.Mutate(game.Code, func(g *GameSession) error {
		if g.Phase == domain.PhaseEnded {
			return domain.ErrGameEnded
		}
		nextIndex = g.CurrentIndex + 1
		return nil
	})
	if err != nil {
		return err
	}

	question, err := e.questions.QuestionByPosition(ctx, game.QuestionSetID, nextIndex)
	if errors.Is(err, domain.ErrQuestionNotFound) {
		return e.endGame(ctx, game.Code, "")
	}
	if err != nil {
		return fmt.Errorf("load question %d: %w", nextIndex, err)
	}

	// Durable row first; memory only moves once the write stuck.
	if err := e.store.SetCurrentQuestion(ctx, game.ID, nextIndex); err != nil {
		return fmt.Errorf("persist question index: %w", err)
	}

	timeLimit := e.timeLimitFor(question)
	now := e.clock.Now()
	var hostSession string
	err = e.sessions.Mutate(game.Code, func(g *GameSession) error {
		if g.Phase == domain.PhaseEnded {
			return domain.ErrGameEnded
		}
		if g.Phase == domain.PhaseQuestion {
			// Review is always visited, even if only implicitly on a
			// manual advance.
			g.Phase = domain.PhaseReview
		}
		g.CurrentIndex = nextIndex
		g.Current = &question
		g.Phase = domain.PhaseQuestion
		g.QuestionStart = now
		g.QuestionLimit = time.Duration(timeLimit) * time.Second
		hostSession = g.HostSessionID
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info().
		Str("game_code", game.Code).
		Int("question_number", nextIndex+1).
		Int64("question_id", question.ID).
		Msg("question started")

	var total int
	e.sessions.View(game.Code, func(g *GameSession) { total = g.TotalQuestions })

	public := protocol.NewQuestionStart(question, nextIndex+1, total, timeLimit)
	e.dispatch.ToGame(game.Code, public)
	if hostSession != "" {
		e.dispatch.ToConn(hostSession, public.WithAnswerKey(question.CorrectOption))
	}
	return nil
}

// FinishQuestion performs the question -> review transition and
// broadcasts the answer key with the standings. Safe to call for a
// session that no longer exists or already moved on.
func (e *Engine) FinishQuestion(ctx context.Context, code string) error {
	var (
		questionID    int64
		correctOption string
		leaderboard   []domain.LeaderboardEntry
		transitioned  bool
	)
	err := e.sessions.Mutate(code, func(g *GameSession) error {
		if g.Phase != domain.PhaseQuestion || g.Current == nil {
			return nil
		}
		g.Phase = domain.PhaseReview
		questionID = g.Current.ID
		correctOption = g.Current.CorrectOption
		leaderboard = g.leaderboardLocked()
		transitioned = true
		return nil
	})
	if errors.Is(err, domain.ErrGameNotFound) || !transitioned {
		return nil
	}
	if err != nil {
		return err
	}

	e.log.Info().Str("game_code", code).Int64("question_id", questionID).Msg("question time elapsed")
	e.dispatch.ToGame(code, protocol.NewQuestionEnd(questionID, correctOption, leaderboard))
	return nil
}

// endGame ends a session, persists completion, broadcasts the final
// results, and evicts the in-memory entry. reason is empty for a
// natural finish and a reason code (e.g. "host_left") for a forced one.
func (e *Engine) endGame(ctx context.Context, code string, reason string) error {
	var (
		gameID      int64
		leaderboard []domain.LeaderboardEntry
		stats       []domain.PlayerStats
	)
	now := e.clock.Now()
	err := e.sessions.Mutate(code, func(g *GameSession) error {
		if g.Phase == domain.PhaseEnded {
			return domain.ErrGameEnded
		}
		g.Phase = domain.PhaseEnded
		g.EndedAt = now
		gameID = g.ID
		leaderboard = g.leaderboardLocked()
		stats = g.playerStatsLocked()
		return nil
	})
	if err != nil {
		return err
	}

	if err := e.store.MarkCompleted(ctx, gameID, now); err != nil {
		e.log.Error().Err(err).Str("game_code", code).Msg("persist game completion")
	}

	e.log.Info().Str("game_code", code).Str("reason", reason).Msg("game ended")
	e.dispatch.ToGame(code, protocol.NewGameEnd(reason, leaderboard, stats))
	e.sessions.Delete(code)
	return nil
}

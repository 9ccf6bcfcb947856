package app

import (
	"context"
	"fmt"
	"strings"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/protocol"
)

// SubmitAnswer validates and scores one answer. The durable answer row
// and score increment land before any in-memory mutation or reply, so a
// broadcast score is never ahead of the store. A second submission for
// the same question is rejected without touching the score.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID string, msg protocol.SubmitAnswer) error {
	info, ok := e.registry.Get(sessionID)
	if !ok || info.PlayerID == nil || info.GameCode == "" {
		return domain.ErrPlayerNotFound
	}

	var (
		setID     int64
		duplicate bool
	)
	found := e.sessions.View(info.GameCode, func(g *GameSession) {
		setID = g.QuestionSetID
		if p, ok := g.Players[sessionID]; ok {
			_, duplicate = p.Answers[msg.QuestionID]
		}
	})
	if !found {
		return domain.ErrGameNotFound
	}
	if duplicate {
		return domain.ErrDuplicateAnswer
	}

	question, err := e.questions.QuestionByID(ctx, msg.QuestionID)
	if err != nil {
		return err
	}
	if question.QuestionSetID != setID {
		return domain.ErrQuestionNotFound
	}

	latency := msg.ResponseTimeMs
	if latency < 0 {
		latency = 0
	}
	option := strings.ToUpper(msg.Answer)
	correct := option == question.CorrectOption
	points := Score(correct, latency, e.cfg.MinPoints, e.cfg.MaxPoints, e.cfg.AnswerBudgetMs)

	answer := domain.Answer{
		PlayerID:       *info.PlayerID,
		QuestionID:     msg.QuestionID,
		Option:         option,
		IsCorrect:      correct,
		ResponseTimeMs: latency,
		PointsEarned:   points,
	}
	if err := e.store.SaveAnswer(ctx, answer); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	if points > 0 {
		if err := e.store.AddScore(ctx, *info.PlayerID, points); err != nil {
			return fmt.Errorf("add score: %w", err)
		}
	}

	now := e.clock.Now()
	err = e.sessions.Mutate(info.GameCode, func(g *GameSession) error {
		p, ok := g.Players[sessionID]
		if !ok {
			return domain.ErrPlayerNotFound
		}
		if _, exists := p.Answers[msg.QuestionID]; exists {
			// Lost a race with a concurrent duplicate; the durable
			// unique constraint is the real guard, keep the first record.
			return domain.ErrDuplicateAnswer
		}
		p.Answers[msg.QuestionID] = answer
		p.Score += points
		p.LastAnswerAt = now
		p.LastSeen = now
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info().
		Str("session_id", sessionID).
		Int64("question_id", msg.QuestionID).
		Bool("correct", correct).
		Int("points", points).
		Msg("answer recorded")

	e.dispatch.ToConn(sessionID, protocol.NewAnswerReceived(answer))
	return nil
}

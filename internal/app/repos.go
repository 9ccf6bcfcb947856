package app

import (
	"context"
	"time"

	"quiz-live-service/internal/domain"
)

// QuestionRepository loads question content (from cache or backing store).
type QuestionRepository interface {
	QuestionByPosition(ctx context.Context, questionSetID int64, position int) (domain.Question, error)
	QuestionByID(ctx context.Context, questionID int64) (domain.Question, error)
	CountQuestions(ctx context.Context, questionSetID int64) (int, error)
}

// GameStore is the durable side of the engine: session and participant
// status rows, submitted answers, and score increments. The in-memory
// tables stay authoritative for live play; these calls keep the rows
// consistent for crash-recovery and reporting.
type GameStore interface {
	GameByCode(ctx context.Context, code string) (domain.Game, error)
	GameByID(ctx context.Context, gameID int64) (domain.Game, error)
	MarkStarted(ctx context.Context, gameID int64, at time.Time) error
	SetCurrentQuestion(ctx context.Context, gameID int64, position int) error
	MarkCompleted(ctx context.Context, gameID int64, at time.Time) error

	CreatePlayer(ctx context.Context, p domain.Player) (int64, error)
	PlayerBySession(ctx context.Context, sessionID string) (domain.Player, error)
	NicknameTaken(ctx context.Context, gameID int64, nickname string) (bool, error)
	ReactivatePlayer(ctx context.Context, playerID int64, sessionID string) error
	DeactivatePlayer(ctx context.Context, playerID int64) error

	// SaveAnswer must fail when a row for (player, question) already
	// exists; answer rows are immutable.
	SaveAnswer(ctx context.Context, a domain.Answer) error
	AddScore(ctx context.Context, playerID int64, points int) error
}

// PresenceStore marks transport-session liveness (best effort).
type PresenceStore interface {
	Touch(ctx context.Context, sessionID string) error
	Forget(ctx context.Context, sessionID string) error
}

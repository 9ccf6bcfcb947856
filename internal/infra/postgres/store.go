package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-live-service/internal/domain"
)

const uniqueViolation = "23505"

// Store implements the engine's durable interfaces on a pgx pool. It
// also satisfies the QuestionLoader contract of the caching layers.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GameByCode(ctx context.Context, code string) (domain.Game, error) {
	return s.scanGame(ctx, `SELECT id, code, host_id, question_set_id, status, current_question, started_at, ended_at
		FROM games WHERE code = $1`, code)
}

func (s *Store) GameByID(ctx context.Context, gameID int64) (domain.Game, error) {
	return s.scanGame(ctx, `SELECT id, code, host_id, question_set_id, status, current_question, started_at, ended_at
		FROM games WHERE id = $1`, gameID)
}

func (s *Store) scanGame(ctx context.Context, query string, arg interface{}) (domain.Game, error) {
	var g domain.Game
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&g.ID, &g.Code, &g.HostUserID, &g.QuestionSetID, &g.Status, &g.CurrentIndex, &g.StartedAt, &g.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("load game: %w", err)
	}
	return g, nil
}

func (s *Store) MarkStarted(ctx context.Context, gameID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE games SET status = $1, started_at = $2 WHERE id = $3`,
		domain.StatusActive, at, gameID)
	if err != nil {
		return fmt.Errorf("mark game started: %w", err)
	}
	return nil
}

func (s *Store) SetCurrentQuestion(ctx context.Context, gameID int64, position int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE games SET current_question = $1 WHERE id = $2`, position, gameID)
	if err != nil {
		return fmt.Errorf("set current question: %w", err)
	}
	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, gameID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE games SET status = $1, ended_at = $2 WHERE id = $3`,
		domain.StatusCompleted, at, gameID)
	if err != nil {
		return fmt.Errorf("mark game completed: %w", err)
	}
	return nil
}

func (s *Store) CreatePlayer(ctx context.Context, p domain.Player) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO players (game_id, user_id, nickname, session_id, score, is_active, joined_at)
		 VALUES ($1, $2, $3, $4, 0, true, $5)
		 RETURNING id`,
		p.GameID, p.UserID, p.Nickname, p.SessionID, p.JoinedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert player: %w", err)
	}
	return id, nil
}

func (s *Store) PlayerBySession(ctx context.Context, sessionID string) (domain.Player, error) {
	var p domain.Player
	err := s.pool.QueryRow(ctx,
		`SELECT id, game_id, user_id, nickname, session_id, score, is_active, joined_at
		 FROM players WHERE session_id = $1`,
		sessionID).Scan(&p.ID, &p.GameID, &p.UserID, &p.Nickname, &p.SessionID, &p.Score, &p.IsActive, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("load player: %w", err)
	}
	return p, nil
}

func (s *Store) NicknameTaken(ctx context.Context, gameID int64, nickname string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM players WHERE game_id = $1 AND nickname = $2)`,
		gameID, nickname).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check nickname: %w", err)
	}
	return exists, nil
}

func (s *Store) ReactivatePlayer(ctx context.Context, playerID int64, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE players SET is_active = true, session_id = $1 WHERE id = $2`,
		sessionID, playerID)
	if err != nil {
		return fmt.Errorf("reactivate player: %w", err)
	}
	return nil
}

func (s *Store) DeactivatePlayer(ctx context.Context, playerID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE players SET is_active = false WHERE id = $1`, playerID)
	if err != nil {
		return fmt.Errorf("deactivate player: %w", err)
	}
	return nil
}

func (s *Store) SaveAnswer(ctx context.Context, a domain.Answer) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO player_answers (player_id, question_id, answer, is_correct, response_time_ms, points_earned)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.PlayerID, a.QuestionID, a.Option, a.IsCorrect, a.ResponseTimeMs, a.PointsEarned)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrDuplicateAnswer
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (s *Store) AddScore(ctx context.Context, playerID int64, points int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE players SET score = score + $1 WHERE id = $2`, points, playerID)
	if err != nil {
		return fmt.Errorf("add score: %w", err)
	}
	return nil
}

func (s *Store) QuestionByPosition(ctx context.Context, questionSetID int64, position int) (domain.Question, error) {
	return s.scanQuestion(ctx,
		`SELECT id, question_set_id, position, question_text, option_a, option_b, option_c, option_d, correct_option, time_limit
		 FROM questions WHERE question_set_id = $1 AND position = $2`,
		questionSetID, position)
}

func (s *Store) QuestionByID(ctx context.Context, questionID int64) (domain.Question, error) {
	return s.scanQuestion(ctx,
		`SELECT id, question_set_id, position, question_text, option_a, option_b, option_c, option_d, correct_option, time_limit
		 FROM questions WHERE id = $1`,
		questionID)
}

func (s *Store) CountQuestions(ctx context.Context, questionSetID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE question_set_id = $1`, questionSetID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return count, nil
}

func (s *Store) LoadQuestionSet(ctx context.Context, questionSetID int64) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, question_set_id, position, question_text, option_a, option_b, option_c, option_d, correct_option, time_limit
		 FROM questions WHERE question_set_id = $1 ORDER BY position`,
		questionSetID)
	if err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestionRow(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrQuestionNotFound
	}
	return questions, nil
}

func (s *Store) LoadQuestion(ctx context.Context, questionID int64) (domain.Question, error) {
	return s.QuestionByID(ctx, questionID)
}

func (s *Store) scanQuestion(ctx context.Context, query string, args ...interface{}) (domain.Question, error) {
	row := s.pool.QueryRow(ctx, query, args...)
	q, err := scanQuestionRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestionRow(row rowScanner) (domain.Question, error) {
	var (
		q          domain.Question
		a, b, c, d string
	)
	if err := row.Scan(&q.ID, &q.QuestionSetID, &q.Position, &q.Text, &a, &b, &c, &d, &q.CorrectOption, &q.TimeLimitSec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, pgx.ErrNoRows
		}
		return domain.Question{}, fmt.Errorf("scan question: %w", err)
	}
	q.Options = map[string]string{"A": a, "B": b, "C": c, "D": d}
	return q, nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"quiz-live-service/internal/domain"
)

type answerKey struct {
	playerID   int64
	questionID int64
}

// GameStore is an in-memory implementation of app.GameStore, used for
// demo mode and tests. It enforces the same uniqueness rules as the
// relational schema: one game per code, one answer row per
// (player, question) pair.
type GameStore struct {
	mu           sync.Mutex
	games        map[int64]*domain.Game
	byCode       map[string]int64
	players      map[int64]*domain.Player
	answers      map[answerKey]domain.Answer
	nextPlayerID int64
}

// NewGameStore seeds the store with pre-created game rows (normally a
// separate authoring service writes those).
func NewGameStore(games ...domain.Game) *GameStore {
	s := &GameStore{
		games:   make(map[int64]*domain.Game),
		byCode:  make(map[string]int64),
		players: make(map[int64]*domain.Player),
		answers: make(map[answerKey]domain.Answer),
	}
	for i := range games {
		g := games[i]
		if g.CurrentIndex == 0 {
			g.CurrentIndex = -1
		}
		if g.Status == "" {
			g.Status = domain.StatusLobby
		}
		s.games[g.ID] = &g
		s.byCode[g.Code] = g.ID
	}
	return s
}

func (s *GameStore) GameByCode(_ context.Context, code string) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return *s.games[id], nil
}

func (s *GameStore) GameByID(_ context.Context, gameID int64) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return *game, nil
}

func (s *GameStore) MarkStarted(_ context.Context, gameID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	game.Status = domain.StatusActive
	game.StartedAt = &at
	return nil
}

func (s *GameStore) SetCurrentQuestion(_ context.Context, gameID int64, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	game.CurrentIndex = position
	return nil
}

func (s *GameStore) MarkCompleted(_ context.Context, gameID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}
	game.Status = domain.StatusCompleted
	game.EndedAt = &at
	return nil
}

func (s *GameStore) CreatePlayer(_ context.Context, p domain.Player) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPlayerID++
	p.ID = s.nextPlayerID
	s.players[p.ID] = &p
	return p.ID, nil
}

func (s *GameStore) PlayerBySession(_ context.Context, sessionID string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.SessionID == sessionID {
			return *p, nil
		}
	}
	return domain.Player{}, domain.ErrSessionNotFound
}

func (s *GameStore) NicknameTaken(_ context.Context, gameID int64, nickname string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.GameID == gameID && p.Nickname == nickname {
			return true, nil
		}
	}
	return false, nil
}

func (s *GameStore) ReactivatePlayer(_ context.Context, playerID int64, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.IsActive = true
	p.SessionID = sessionID
	return nil
}

func (s *GameStore) DeactivatePlayer(_ context.Context, playerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.IsActive = false
	return nil
}

func (s *GameStore) SaveAnswer(_ context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{playerID: a.PlayerID, questionID: a.QuestionID}
	if _, exists := s.answers[key]; exists {
		return domain.ErrDuplicateAnswer
	}
	s.answers[key] = a
	return nil
}

func (s *GameStore) AddScore(_ context.Context, playerID int64, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.Score += points
	return nil
}

// AnswerFor exposes stored answers to tests.
func (s *GameStore) AnswerFor(playerID, questionID int64) (domain.Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[answerKey{playerID: playerID, questionID: questionID}]
	return a, ok
}

// PlayerByID exposes stored player rows to tests.
func (s *GameStore) PlayerByID(playerID int64) (domain.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return domain.Player{}, false
	}
	return *p, true
}

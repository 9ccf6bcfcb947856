package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/protocol"
)

// Config carries the engine's tunables.
type Config struct {
	MinPoints           int
	MaxPoints           int
	AnswerBudgetMs      int
	DefaultTimeLimitSec int
	TickInterval        time.Duration
}

// DefaultConfig matches the classic trivia pacing: up to 1000 points,
// 10 second answer budget, 30 second questions.
func DefaultConfig() Config {
	return Config{
		MinPoints:           100,
		MaxPoints:           1000,
		AnswerBudgetMs:      10000,
		DefaultTimeLimitSec: 30,
		TickInterval:        time.Second,
	}
}

// Engine owns the live session tables and implements every game
// operation the transport dispatches. All methods are safe for
// concurrent use from connection goroutines and the advancement loop.
type Engine struct {
	cfg       Config
	registry  *Registry
	sessions  *SessionStore
	dispatch  *Dispatcher
	questions QuestionRepository
	store     GameStore
	clock     clockwork.Clock
	log       zerolog.Logger
}

func NewEngine(cfg Config, registry *Registry, sessions *SessionStore, questions QuestionRepository, store GameStore, clock clockwork.Clock, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		registry:  registry,
		sessions:  sessions,
		dispatch:  NewDispatcher(registry, sessions, log),
		questions: questions,
		store:     store,
		clock:     clock,
		log:       log.With().Str("component", "engine").Logger(),
	}
}

// Registry exposes the connection registry the engine was built with.
func (e *Engine) Registry() *Registry { return e.registry }

// Dispatcher exposes the broadcast dispatcher.
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatch }

// JoinLobby registers a connection as a player in a game that is still
// open. Guests get a "**" nickname prefix; nicknames are unique per
// game.
func (e *Engine) JoinLobby(ctx context.Context, sessionID string, msg protocol.JoinLobby) error {
	info, ok := e.registry.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}

	game, err := e.store.GameByCode(ctx, msg.GameCode)
	if err != nil {
		return err
	}
	if game.Status != domain.StatusLobby {
		return domain.ErrGameNotJoinable
	}

	isGuest := info.UserID == nil
	nickname := msg.Nickname
	if isGuest && !strings.HasPrefix(nickname, "**") {
		nickname = "**" + nickname
	}

	taken, err := e.store.NicknameTaken(ctx, game.ID, nickname)
	if err != nil {
		return fmt.Errorf("check nickname: %w", err)
	}
	if taken {
		return domain.ErrNicknameTaken
	}

	now := e.clock.Now()
	playerID, err := e.store.CreatePlayer(ctx, domain.Player{
		GameID:    game.ID,
		UserID:    info.UserID,
		Nickname:  nickname,
		SessionID: sessionID,
		IsActive:  true,
		JoinedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}

	e.registry.Update(sessionID, func(c *ConnInfo) {
		c.PlayerID = &playerID
		c.GameID = &game.ID
		c.GameCode = game.Code
		c.Role = domain.RolePlayer
	})

	totalQuestions, err := e.questions.CountQuestions(ctx, game.QuestionSetID)
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}

	session := e.sessions.Upsert(game.Code, func() *GameSession {
		hostSession, _ := e.registry.SessionIDForUser(game.HostUserID)
		return &GameSession{
			ID:             game.ID,
			Code:           game.Code,
			HostSessionID:  hostSession,
			HostUserID:     game.HostUserID,
			QuestionSetID:  game.QuestionSetID,
			TotalQuestions: totalQuestions,
			CurrentIndex:   -1,
			Phase:          domain.PhaseLobby,
			Players:        make(map[string]*PlayerState),
		}
	})

	var lobby []domain.PlayerInfo
	_ = e.sessions.Mutate(session.Code, func(g *GameSession) error {
		g.Players[sessionID] = &PlayerState{
			PlayerID:  playerID,
			UserID:    info.UserID,
			SessionID: sessionID,
			Nickname:  nickname,
			Answers:   make(map[int64]domain.Answer),
			IsActive:  true,
			JoinedAt:  now,
			LastSeen:  now,
		}
		lobby = g.lobbyPlayersLocked()
		return nil
	})

	e.log.Info().
		Str("session_id", sessionID).
		Str("game_code", game.Code).
		Str("nickname", nickname).
		Bool("is_guest", isGuest).
		Msg("player joined lobby")

	e.dispatch.ToConn(sessionID, protocol.NewJoinSuccess(playerID, game.Code, nickname, isGuest))
	e.dispatch.ToGame(game.Code, protocol.NewLobbyUpdate(game.Code, lobby))
	return nil
}

// Disconnect tears down a connection's standing: registry entry
// removed, player marked inactive in memory and durably, and the whole
// session force-ended when the departing connection was its host.
func (e *Engine) Disconnect(ctx context.Context, sessionID string) {
	info, ok := e.registry.Get(sessionID)
	e.registry.Remove(sessionID)
	if !ok {
		return
	}

	if info.PlayerID != nil {
		if err := e.store.DeactivatePlayer(ctx, *info.PlayerID); err != nil {
			e.log.Error().Err(err).Int64("player_id", *info.PlayerID).Msg("deactivate player")
		}
	}

	code, found := e.sessions.FindByParticipant(sessionID)
	if !found && info.GameCode != "" {
		code, found = info.GameCode, true
	}
	if !found {
		return
	}

	hostLeft := false
	_ = e.sessions.Mutate(code, func(g *GameSession) error {
		if p, ok := g.Players[sessionID]; ok {
			p.IsActive = false
			p.LastSeen = e.clock.Now()
		}
		if g.HostSessionID == sessionID || g.isHostConn(info) {
			hostLeft = g.Phase != domain.PhaseEnded
		}
		return nil
	})

	e.log.Info().Str("session_id", sessionID).Str("game_code", code).Bool("host_left", hostLeft).Msg("connection closed")

	if hostLeft {
		e.endGame(ctx, code, "host_left")
	}
}

// Leaderboard snapshots the current standings of a session.
func (e *Engine) Leaderboard(code string) ([]domain.LeaderboardEntry, error) {
	var lb []domain.LeaderboardEntry
	if ok := e.sessions.View(code, func(g *GameSession) { lb = g.leaderboardLocked() }); !ok {
		return nil, domain.ErrGameNotFound
	}
	return lb, nil
}

// timeLimitFor applies the configured default when a question carries none.
func (e *Engine) timeLimitFor(q domain.Question) int {
	if q.TimeLimitSec > 0 {
		return q.TimeLimitSec
	}
	return e.cfg.DefaultTimeLimitSec
}

package domain

import "time"

// Phase is a game session's position in its lifecycle state machine.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseQuestion Phase = "question"
	PhaseReview   Phase = "review"
	PhaseEnded    Phase = "ended"
)

// Role classifies what a connection is to a game.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
	RoleViewer Role = "viewer"
)

// GameStatus mirrors the durable games.status column.
type GameStatus string

const (
	StatusLobby     GameStatus = "lobby"
	StatusActive    GameStatus = "active"
	StatusCompleted GameStatus = "completed"
)

// Question is one multiple-choice question with its answer key.
// CorrectOption must never leave the server except to the host.
type Question struct {
	ID            int64
	QuestionSetID int64
	Position      int
	Text          string
	Options       map[string]string // "A".."D" -> option text
	CorrectOption string
	TimeLimitSec  int // 0 means the configured default applies
}

// Game is the durable row the engine reads when a lobby is first joined
// and writes status transitions back to.
type Game struct {
	ID            int64
	Code          string
	HostUserID    int64
	QuestionSetID int64
	Status        GameStatus
	CurrentIndex  int
	StartedAt     *time.Time
	EndedAt       *time.Time
}

// Player is the durable participant row.
type Player struct {
	ID        int64
	GameID    int64
	UserID    *int64 // nil for guests
	Nickname  string
	SessionID string
	Score     int
	IsActive  bool
	JoinedAt  time.Time
}

// Answer is one submitted answer. Rows are created once per
// (player, question) pair and never overwritten.
type Answer struct {
	PlayerID       int64
	QuestionID     int64
	Option         string
	IsCorrect      bool
	ResponseTimeMs int
	PointsEarned   int
}

// PlayerInfo is the public lobby view of a player.
type PlayerInfo struct {
	PlayerID int64  `json:"player_id"`
	Nickname string `json:"nickname"`
	IsGuest  bool   `json:"is_guest"`
}

// LeaderboardEntry is one scoreboard row, ordered by descending score.
type LeaderboardEntry struct {
	PlayerID int64  `json:"player_id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	IsGuest  bool   `json:"is_guest"`
}

// PlayerStats summarizes a player's run for the game_end report.
type PlayerStats struct {
	PlayerID          int64   `json:"player_id"`
	Nickname          string  `json:"nickname"`
	Score             int     `json:"score"`
	Answers           int     `json:"answers"`
	Correct           int     `json:"correct"`
	Accuracy          float64 `json:"accuracy"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

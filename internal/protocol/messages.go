// Package protocol defines the websocket wire messages. Every message
// is a flat JSON object carrying a "type" tag alongside its fields.
// Inbound messages decode through Decode into a closed set of variants
// so handlers can switch exhaustively; outbound messages are built
// through constructors that pin the tag.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"quiz-live-service/internal/domain"
)

// Inbound message tags.
const (
	TypePing         = "ping"
	TypeJoinLobby    = "join_lobby"
	TypeStartGame    = "start_game"
	TypeSubmitAnswer = "submit_answer"
	TypeNextQuestion = "next_question"
	TypeReconnect    = "reconnect"
)

// Outbound message tags.
const (
	TypeWelcome          = "welcome"
	TypeCounter          = "counter"
	TypeJoinSuccess      = "join_success"
	TypeLobbyUpdate      = "lobby_update"
	TypeGameStarted      = "game_started"
	TypeQuestionStart    = "question_start"
	TypeAnswerReceived   = "answer_received"
	TypeQuestionEnd      = "question_end"
	TypeGameEnd          = "game_end"
	TypeReconnectSuccess = "reconnect_success"
	TypeError            = "error"
	TypePong             = "pong"
)

var (
	// ErrUnknownType is returned for unrecognized inbound tags. Callers
	// log and ignore these rather than dropping the connection.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing required field")
)

// Inbound is one decoded client message.
type Inbound interface{ inbound() }

type Ping struct{}

type JoinLobby struct {
	GameCode string `json:"game_code"`
	Nickname string `json:"nickname"`
}

type StartGame struct {
	GameCode string `json:"game_code"`
}

type SubmitAnswer struct {
	QuestionID     int64  `json:"question_id"`
	Answer         string `json:"answer"`
	ResponseTimeMs int    `json:"response_time_ms"`
}

type NextQuestion struct {
	GameCode string `json:"game_code"`
}

type Reconnect struct {
	OldSessionID string `json:"old_session_id"`
}

func (Ping) inbound()         {}
func (JoinLobby) inbound()    {}
func (StartGame) inbound()    {}
func (SubmitAnswer) inbound() {}
func (NextQuestion) inbound() {}
func (Reconnect) inbound()    {}

// Decode parses one inbound frame into its typed variant.
func Decode(data []byte) (Inbound, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch probe.Type {
	case TypePing:
		return Ping{}, nil
	case TypeJoinLobby:
		var m JoinLobby
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", probe.Type, err)
		}
		if m.GameCode == "" {
			return nil, fmt.Errorf("%w: game_code", ErrMissingField)
		}
		if m.Nickname == "" {
			return nil, fmt.Errorf("%w: nickname", ErrMissingField)
		}
		return m, nil
	case TypeStartGame:
		var m StartGame
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", probe.Type, err)
		}
		if m.GameCode == "" {
			return nil, fmt.Errorf("%w: game_code", ErrMissingField)
		}
		return m, nil
	case TypeSubmitAnswer:
		var m SubmitAnswer
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", probe.Type, err)
		}
		if m.QuestionID == 0 {
			return nil, fmt.Errorf("%w: question_id", ErrMissingField)
		}
		if m.Answer == "" {
			return nil, fmt.Errorf("%w: answer", ErrMissingField)
		}
		return m, nil
	case TypeNextQuestion:
		var m NextQuestion
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", probe.Type, err)
		}
		if m.GameCode == "" {
			return nil, fmt.Errorf("%w: game_code", ErrMissingField)
		}
		return m, nil
	case TypeReconnect:
		var m Reconnect
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", probe.Type, err)
		}
		if m.OldSessionID == "" {
			return nil, fmt.Errorf("%w: old_session_id", ErrMissingField)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, probe.Type)
	}
}

// Outbound is one server message ready to marshal.
type Outbound interface{ outbound() }

// Encode serializes an outbound message to its wire form.
func Encode(m Outbound) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode outbound: %w", err)
	}
	return data, nil
}

type Welcome struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type Counter struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type JoinSuccess struct {
	Type     string `json:"type"`
	PlayerID int64  `json:"player_id"`
	GameCode string `json:"game_code"`
	Nickname string `json:"nickname"`
	IsGuest  bool   `json:"is_guest"`
}

type LobbyUpdate struct {
	Type     string              `json:"type"`
	GameCode string              `json:"game_code"`
	Players  []domain.PlayerInfo `json:"players"`
}

type GameStarted struct {
	Type     string `json:"type"`
	GameCode string `json:"game_code"`
}

// QuestionStart carries a question to participants. The public form
// never includes the answer key; WithAnswerKey derives the host-only
// copy.
type QuestionStart struct {
	Type           string            `json:"type"`
	QuestionID     int64             `json:"question_id"`
	QuestionText   string            `json:"question_text"`
	Options        map[string]string `json:"options"`
	TimeLimit      int               `json:"time_limit"`
	QuestionNumber int               `json:"question_number"`
	TotalQuestions int               `json:"total_questions"`
	CorrectOption  string            `json:"correct_option,omitempty"`
}

type AnswerReceived struct {
	Type         string `json:"type"`
	QuestionID   int64  `json:"question_id"`
	YourAnswer   string `json:"your_answer"`
	IsCorrect    bool   `json:"is_correct"`
	PointsEarned int    `json:"points_earned"`
}

type QuestionEnd struct {
	Type          string                    `json:"type"`
	QuestionID    int64                     `json:"question_id"`
	CorrectOption string                    `json:"correct_option"`
	Leaderboard   []domain.LeaderboardEntry `json:"leaderboard"`
}

type GameEnd struct {
	Type             string                    `json:"type"`
	Reason           string                    `json:"reason,omitempty"`
	FinalLeaderboard []domain.LeaderboardEntry `json:"final_leaderboard"`
	PlayerStats      []domain.PlayerStats      `json:"player_stats"`
}

type ReconnectSuccess struct {
	Type        string                    `json:"type"`
	PlayerID    int64                     `json:"player_id"`
	GameCode    string                    `json:"game_code"`
	Nickname    string                    `json:"nickname"`
	Score       int                       `json:"score"`
	Phase       domain.Phase              `json:"phase"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func (Welcome) outbound()          {}
func (Counter) outbound()          {}
func (JoinSuccess) outbound()      {}
func (LobbyUpdate) outbound()      {}
func (GameStarted) outbound()      {}
func (QuestionStart) outbound()    {}
func (AnswerReceived) outbound()   {}
func (QuestionEnd) outbound()      {}
func (GameEnd) outbound()          {}
func (ReconnectSuccess) outbound() {}
func (Error) outbound()            {}
func (Pong) outbound()             {}

func NewWelcome(sessionID string) Welcome {
	return Welcome{Type: TypeWelcome, SessionID: sessionID}
}

func NewCounter(count int) Counter {
	return Counter{Type: TypeCounter, Count: count}
}

func NewJoinSuccess(playerID int64, gameCode, nickname string, isGuest bool) JoinSuccess {
	return JoinSuccess{Type: TypeJoinSuccess, PlayerID: playerID, GameCode: gameCode, Nickname: nickname, IsGuest: isGuest}
}

func NewLobbyUpdate(gameCode string, players []domain.PlayerInfo) LobbyUpdate {
	return LobbyUpdate{Type: TypeLobbyUpdate, GameCode: gameCode, Players: players}
}

func NewGameStarted(gameCode string) GameStarted {
	return GameStarted{Type: TypeGameStarted, GameCode: gameCode}
}

// NewQuestionStart builds the public broadcast form without the answer key.
func NewQuestionStart(q domain.Question, number, total, timeLimit int) QuestionStart {
	return QuestionStart{
		Type:           TypeQuestionStart,
		QuestionID:     q.ID,
		QuestionText:   q.Text,
		Options:        q.Options,
		TimeLimit:      timeLimit,
		QuestionNumber: number,
		TotalQuestions: total,
	}
}

// WithAnswerKey returns the privileged host-only copy.
func (m QuestionStart) WithAnswerKey(correctOption string) QuestionStart {
	m.CorrectOption = correctOption
	return m
}

func NewAnswerReceived(a domain.Answer) AnswerReceived {
	return AnswerReceived{
		Type:         TypeAnswerReceived,
		QuestionID:   a.QuestionID,
		YourAnswer:   a.Option,
		IsCorrect:    a.IsCorrect,
		PointsEarned: a.PointsEarned,
	}
}

func NewQuestionEnd(questionID int64, correctOption string, lb []domain.LeaderboardEntry) QuestionEnd {
	return QuestionEnd{Type: TypeQuestionEnd, QuestionID: questionID, CorrectOption: correctOption, Leaderboard: lb}
}

func NewGameEnd(reason string, lb []domain.LeaderboardEntry, stats []domain.PlayerStats) GameEnd {
	return GameEnd{Type: TypeGameEnd, Reason: reason, FinalLeaderboard: lb, PlayerStats: stats}
}

func NewReconnectSuccess(playerID int64, gameCode, nickname string, score int, phase domain.Phase, lb []domain.LeaderboardEntry) ReconnectSuccess {
	return ReconnectSuccess{
		Type:        TypeReconnectSuccess,
		PlayerID:    playerID,
		GameCode:    gameCode,
		Nickname:    nickname,
		Score:       score,
		Phase:       phase,
		Leaderboard: lb,
	}
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

func NewPong(timestamp int64) Pong {
	return Pong{Type: TypePong, Timestamp: timestamp}
}

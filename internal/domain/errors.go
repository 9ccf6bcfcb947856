package domain

import "errors"

var (
	// ErrGameNotFound is returned for an unknown game code.
	ErrGameNotFound = errors.New("game not found")
	// ErrGameNotJoinable is returned when joining a game that left the lobby.
	ErrGameNotJoinable = errors.New("game is no longer open for joining")
	// ErrGameAlreadyStarted rejects starting a game twice.
	ErrGameAlreadyStarted = errors.New("game already started or finished")
	// ErrGameEnded is returned for commands against an ended session.
	ErrGameEnded = errors.New("game has ended")
	// ErrNotHost is returned when a non-host issues a host-only command.
	ErrNotHost = errors.New("only the game host may do that")
	// ErrNicknameTaken is returned when a nickname is already used in a game.
	ErrNicknameTaken = errors.New("nickname already taken")
	// ErrPlayerNotFound is returned when a connection has no player standing.
	ErrPlayerNotFound = errors.New("active player not found")
	// ErrQuestionNotFound indicates an unknown question ID or position.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrDuplicateAnswer rejects a second submission for the same question.
	ErrDuplicateAnswer = errors.New("answer already submitted for this question")
	// ErrSessionNotFound is returned when a reconnect names an unknown prior session.
	ErrSessionNotFound = errors.New("previous session not found")
	// ErrSessionActive rejects reconnecting to a session that is still live.
	ErrSessionActive = errors.New("session is already active")
)

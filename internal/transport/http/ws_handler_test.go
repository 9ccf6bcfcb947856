package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := zerolog.Nop()
	clock := clockwork.NewRealClock()
	store := memory.NewGameStore(domain.Game{
		ID:            1,
		Code:          "ROOM42",
		HostUserID:    7,
		QuestionSetID: 1,
	})
	questions := memory.NewStaticQuestionRepository([]domain.Question{
		{ID: 10, QuestionSetID: 1, Position: 0, Text: "q one",
			Options: map[string]string{"A": "1", "B": "2"}, CorrectOption: "B", TimeLimitSec: 20},
	})
	registry := app.NewRegistry(log)
	sessions := app.NewSessionStore()
	engine := app.NewEngine(app.DefaultConfig(), registry, sessions, questions, store, clock, log)
	handler := NewWSHandler(engine, memory.NewPresence(), time.Minute, time.Minute, clock, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return frame
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		frame := readFrame(t, conn)
		if frame["type"] == msgType {
			return frame
		}
	}
	t.Fatalf("never received %q", msgType)
	return nil
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServeWSWelcomeAndPing(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "")

	welcome := readFrame(t, conn)
	if welcome["type"] != "welcome" || welcome["session_id"] == "" {
		t.Fatalf("expected welcome with session id, got %v", welcome)
	}
	counter := readFrame(t, conn)
	if counter["type"] != "counter" || counter["count"] != float64(1) {
		t.Fatalf("expected counter of 1, got %v", counter)
	}

	writeFrame(t, conn, map[string]any{"type": "ping"})
	pong := readUntil(t, conn, "pong")
	if pong["timestamp"] == nil {
		t.Fatalf("pong missing timestamp: %v", pong)
	}
}

func TestServeWSRejectsBadUserID(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/ws?userId=abc")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestServeWSFullGameFlow(t *testing.T) {
	server := newTestServer(t)
	host := dial(t, server, "?userId=7")
	player := dial(t, server, "")

	readUntil(t, host, "counter")
	readUntil(t, player, "counter")

	writeFrame(t, player, map[string]any{"type": "join_lobby", "game_code": "ROOM42", "nickname": "Alice"})
	joined := readUntil(t, player, "join_success")
	if joined["nickname"] != "**Alice" {
		t.Fatalf("expected guest nickname, got %v", joined)
	}
	lobby := readUntil(t, player, "lobby_update")
	if players, ok := lobby["players"].([]any); !ok || len(players) != 1 {
		t.Fatalf("expected one lobby player, got %v", lobby)
	}

	writeFrame(t, host, map[string]any{"type": "start_game", "game_code": "ROOM42"})
	readUntil(t, player, "game_started")

	public := readUntil(t, player, "question_start")
	if _, leaked := public["correct_option"]; leaked {
		t.Fatalf("answer key leaked to player: %v", public)
	}
	hostQuestion := readUntil(t, host, "question_start")
	for hostQuestion["correct_option"] == nil {
		hostQuestion = readUntil(t, host, "question_start")
	}
	if hostQuestion["correct_option"] != "B" {
		t.Fatalf("host copy missing answer key: %v", hostQuestion)
	}

	writeFrame(t, player, map[string]any{"type": "submit_answer", "question_id": 10, "answer": "B", "response_time_ms": 0})
	received := readUntil(t, player, "answer_received")
	if received["points_earned"] != float64(1000) {
		t.Fatalf("expected 1000 points, got %v", received)
	}

	writeFrame(t, host, map[string]any{"type": "next_question", "game_code": "ROOM42"})
	end := readUntil(t, player, "game_end")
	lb, ok := end["final_leaderboard"].([]any)
	if !ok || len(lb) != 1 {
		t.Fatalf("expected final leaderboard, got %v", end)
	}
}

func TestServeWSErrorsForBadCommands(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "")
	readUntil(t, conn, "counter")

	writeFrame(t, conn, map[string]any{"type": "join_lobby", "game_code": "NOPE", "nickname": "Alice"})
	errFrame := readUntil(t, conn, "error")
	if errFrame["message"] != domain.ErrGameNotFound.Error() {
		t.Fatalf("unexpected error message: %v", errFrame)
	}

	// Malformed and unknown frames are dropped, the connection survives.
	writeFrame(t, conn, map[string]any{"type": "self_destruct"})
	writeFrame(t, conn, map[string]any{"type": "ping"})
	readUntil(t, conn, "pong")

	// Host-only command from a stranger.
	writeFrame(t, conn, map[string]any{"type": "start_game", "game_code": "ROOM42"})
	errFrame = readUntil(t, conn, "error")
	if errFrame["message"] != domain.ErrNotHost.Error() {
		t.Fatalf("expected host rejection, got %v", errFrame)
	}
}

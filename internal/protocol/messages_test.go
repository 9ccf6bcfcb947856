package protocol_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/protocol"
)

func TestDecodeInboundVariants(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want protocol.Inbound
	}{
		{"ping", `{"type":"ping"}`, protocol.Ping{}},
		{
			"join_lobby",
			`{"type":"join_lobby","game_code":"ROOM42","nickname":"Alice"}`,
			protocol.JoinLobby{GameCode: "ROOM42", Nickname: "Alice"},
		},
		{
			"start_game",
			`{"type":"start_game","game_code":"ROOM42"}`,
			protocol.StartGame{GameCode: "ROOM42"},
		},
		{
			"submit_answer",
			`{"type":"submit_answer","question_id":10,"answer":"B","response_time_ms":1500}`,
			protocol.SubmitAnswer{QuestionID: 10, Answer: "B", ResponseTimeMs: 1500},
		},
		{
			"next_question",
			`{"type":"next_question","game_code":"ROOM42"}`,
			protocol.NextQuestion{GameCode: "ROOM42"},
		},
		{
			"reconnect",
			`{"type":"reconnect","old_session_id":"abc-123"}`,
			protocol.Reconnect{OldSessionID: "abc-123"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := protocol.Decode([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tc.want {
				t.Fatalf("decoded %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeRejectsUnknownAndMalformed(t *testing.T) {
	if _, err := protocol.Decode([]byte(`{"type":"self_destruct"}`)); !errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
	if _, err := protocol.Decode([]byte(`not json at all`)); err == nil {
		t.Fatalf("expected parse failure")
	}
	if _, err := protocol.Decode([]byte(`{}`)); !errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("expected unknown type for missing tag, got %v", err)
	}
}

func TestDecodeRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"join without code", `{"type":"join_lobby","nickname":"Alice"}`},
		{"join without nickname", `{"type":"join_lobby","game_code":"ROOM42"}`},
		{"start without code", `{"type":"start_game"}`},
		{"answer without question", `{"type":"submit_answer","answer":"B"}`},
		{"answer without option", `{"type":"submit_answer","question_id":10}`},
		{"next without code", `{"type":"next_question"}`},
		{"reconnect without session", `{"type":"reconnect"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := protocol.Decode([]byte(tc.raw)); !errors.Is(err, protocol.ErrMissingField) {
				t.Fatalf("expected missing field error, got %v", err)
			}
		})
	}
}

func TestQuestionStartHidesAnswerKey(t *testing.T) {
	q := domain.Question{
		ID:            10,
		QuestionSetID: 1,
		Text:          "q one",
		Options:       map[string]string{"A": "1", "B": "2"},
		CorrectOption: "B",
	}

	public, err := protocol.Encode(protocol.NewQuestionStart(q, 1, 3, 20))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(string(public), "correct_option") {
		t.Fatalf("public frame leaks the answer key: %s", public)
	}

	hostCopy, err := protocol.Encode(protocol.NewQuestionStart(q, 1, 3, 20).WithAnswerKey(q.CorrectOption))
	if err != nil {
		t.Fatalf("encode host copy: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(hostCopy, &frame); err != nil {
		t.Fatalf("decode host copy: %v", err)
	}
	if frame["correct_option"] != "B" {
		t.Fatalf("host copy missing answer key: %s", hostCopy)
	}
}

func TestOutboundTypeTags(t *testing.T) {
	cases := []struct {
		msg  protocol.Outbound
		want string
	}{
		{protocol.NewWelcome("s1"), "welcome"},
		{protocol.NewCounter(3), "counter"},
		{protocol.NewJoinSuccess(1, "ROOM42", "**Alice", true), "join_success"},
		{protocol.NewLobbyUpdate("ROOM42", nil), "lobby_update"},
		{protocol.NewGameStarted("ROOM42"), "game_started"},
		{protocol.NewAnswerReceived(domain.Answer{QuestionID: 10, Option: "B"}), "answer_received"},
		{protocol.NewQuestionEnd(10, "B", nil), "question_end"},
		{protocol.NewGameEnd("host_left", nil, nil), "game_end"},
		{protocol.NewReconnectSuccess(1, "ROOM42", "**Alice", 500, domain.PhaseQuestion, nil), "reconnect_success"},
		{protocol.NewError("boom"), "error"},
		{protocol.NewPong(1234), "pong"},
	}
	for _, tc := range cases {
		data, err := protocol.Encode(tc.msg)
		if err != nil {
			t.Fatalf("encode %T: %v", tc.msg, err)
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode %T: %v", tc.msg, err)
		}
		if frame["type"] != tc.want {
			t.Fatalf("%T tagged %v, want %q", tc.msg, frame["type"], tc.want)
		}
	}
}

func TestGameEndReasonOmittedWhenNatural(t *testing.T) {
	natural, err := protocol.Encode(protocol.NewGameEnd("", nil, nil))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(string(natural), "reason") {
		t.Fatalf("natural finish should omit reason: %s", natural)
	}

	forced, err := protocol.Encode(protocol.NewGameEnd("host_left", nil, nil))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(forced), `"reason":"host_left"`) {
		t.Fatalf("forced finish should carry reason: %s", forced)
	}
}

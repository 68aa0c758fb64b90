package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
)

func TestWebSocketQuizFlow(t *testing.T) {
	srv := newTestServer(t, true)
	room := srv.createRoom(t)

	host, _, err := websocket.DefaultDialer.Dial(srv.wsURL("/ws/"+room.Code+"/host?token="+srv.token(t, ownerID)), nil)
	if err != nil {
		t.Fatalf("dial host: %v", err)
	}
	defer host.Close()
	srv.waitForHost(t, room.Code)

	player, _, err := websocket.DefaultDialer.Dial(srv.wsURL("/ws/"+room.Code+"/player"), nil)
	if err != nil {
		t.Fatalf("dial player: %v", err)
	}

	if err := player.WriteJSON(map[string]any{"action": "join_room", "nickname": "alice"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	waiting := readEvent(t, player, "waiting_approval")
	participantID := waiting["participant_id"]

	request := readEvent(t, host, "player_request")
	if p, _ := request["participant"].(map[string]any); p["username"] != "alice" || p["id"] != participantID {
		t.Fatalf("unexpected player_request %v", request)
	}

	if err := host.WriteJSON(map[string]any{"action": "approve_player", "participant_id": participantID}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	readEvent(t, player, "player_approved")

	if err := host.WriteJSON(map[string]any{"action": "start_quiz"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	started := readEvent(t, player, "quiz_started")
	question, _ := started["question"].(map[string]any)
	if question["id"] != float64(10) || question["timer_seconds"] != float64(20) {
		t.Fatalf("unexpected question %v", question)
	}
	choices, _ := question["choices"].([]any)
	for _, c := range choices {
		if _, leaked := c.(map[string]any)["is_correct"]; leaked {
			t.Fatalf("question event leaks correctness: %v", c)
		}
	}

	if err := player.WriteJSON(map[string]any{
		"action":         "submit_answer",
		"participant_id": participantID,
		"question_id":    10,
		"choice_id":      101,
		"response_time":  1.0,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	result := readEvent(t, player, "answer_result")
	if result["is_correct"] != true || result["score_earned"].(float64) <= 0 {
		t.Fatalf("unexpected answer_result %v", result)
	}

	// Garbage is ignored and the connection stays usable.
	if err := player.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := host.WriteJSON(map[string]any{"action": "show_leaderboard"}); err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	board := readEvent(t, player, "leaderboard")
	if entries, _ := board["leaderboard"].([]any); len(entries) != 1 {
		t.Fatalf("unexpected leaderboard %v", board)
	}

	_ = player.Close()
	left := readEvent(t, host, "player_left")
	if left["participant_id"] != participantID || left["participants_count"] != float64(0) {
		t.Fatalf("unexpected player_left %v", left)
	}
}

func TestPlayerCannotIssueHostIntents(t *testing.T) {
	srv := newTestServer(t, false)
	room := srv.createRoom(t)

	host, _, err := websocket.DefaultDialer.Dial(srv.wsURL("/ws/"+room.Code+"/host"), nil)
	if err != nil {
		t.Fatalf("dial host: %v", err)
	}
	defer host.Close()
	srv.waitForHost(t, room.Code)

	player, _, err := websocket.DefaultDialer.Dial(srv.wsURL("/ws/"+room.Code+"/player"), nil)
	if err != nil {
		t.Fatalf("dial player: %v", err)
	}
	defer player.Close()

	if err := player.WriteJSON(map[string]any{"action": "start_quiz"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The join reply proves the start intent was processed first.
	if err := player.WriteJSON(map[string]any{"action": "join_room", "nickname": "mallory"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	readEvent(t, player, "waiting_approval")

	info, err := srv.svc.RoomInfo(context.Background(), room.Code)
	if err != nil {
		t.Fatalf("room info: %v", err)
	}
	if info.Status != "waiting" {
		t.Fatalf("player started the quiz: %s", info.Status)
	}
	if got := srv.reg.Metrics().Snapshot().RejectedIntents; got != 1 {
		t.Fatalf("expected one rejected intent, got %d", got)
	}
}

func TestWebSocketHandshakeRejections(t *testing.T) {
	srv := newTestServer(t, true)
	room := srv.createRoom(t)

	cases := []struct {
		name   string
		path   string
		status int
	}{
		{"bad role", "/ws/" + room.Code + "/judge", http.StatusBadRequest},
		{"missing token", "/ws/" + room.Code + "/host", http.StatusUnauthorized},
		{"foreign host", "/ws/" + room.Code + "/host?token=" + srv.token(t, 99), http.StatusForbidden},
		{"unknown room", "/ws/ZZZZZZ/player", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(srv.wsURL(tc.path), nil)
			if err == nil {
				conn.Close()
				t.Fatalf("expected handshake failure")
			}
			if resp == nil || resp.StatusCode != tc.status {
				t.Fatalf("expected status %d, got %+v", tc.status, resp)
			}
		})
	}
}

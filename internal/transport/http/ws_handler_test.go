package http

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trivia-scoring-service/internal/domain"
)

func TestWebSocketSubmitFinalizeFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodPost, "/sessions", "p1", openSessionRequest{QuestionIDs: []string{"Q1", "Q2"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open session: status %d", resp.StatusCode)
	}
	session := decode[domain.Session](t, resp)

	token, err := srv.tokens.Issue("p1", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	u := "ws" + srv.URL[len("http"):] + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect hello event first.
	if typ, payload := readNext(conn, t, "hello"); payload["playerId"] != "p1" {
		t.Fatalf("expected hello for p1, got %s %+v", typ, payload)
	}
	readNext(conn, t, "leaderboard") // initial snapshot

	submit := map[string]any{
		"type": "submit",
		"payload": map[string]any{
			"sessionId": session.ID,
			"answers": []map[string]any{
				{"questionId": "Q1", "submittedAnswer": "Paris", "elapsedMillis": 2000},
				{"questionId": "Q2", "submittedAnswer": "42", "elapsedMillis": 1500},
			},
		},
	}
	if err := conn.WriteJSON(submit); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	if _, payload := readNext(conn, t, "submitted"); payload["state"] != "scored" {
		t.Fatalf("expected scored state, got %+v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "finalize", "payload": map[string]any{"sessionId": session.ID}}); err != nil {
		t.Fatalf("write finalize: %v", err)
	}

	// Expect finalized and a leaderboard push, in either order.
	finalizedSeen := false
	leaderboardSeen := false
	for i := 0; i < 2; i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "finalized":
			finalizedSeen = payload["score"] == float64(15)
		case "leaderboard":
			leaderboardSeen = true
		}
	}
	if !finalizedSeen || !leaderboardSeen {
		t.Fatalf("expected finalized and leaderboard, got finalized=%v leaderboard=%v", finalizedSeen, leaderboardSeen)
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write unknown: %v", err)
	}
	if _, payload := readNext(conn, t, "error"); payload["code"] != "unsupported" {
		t.Fatalf("expected unsupported error, got %+v", payload)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	u := "ws" + srv.URL[len("http"):] + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	payload := map[string]any{}
	_ = json.Unmarshal(msg.Payload, &payload)
	return msg.Type, payload
}

func TestWebSocketHandlerReturnsWhenClientVanishes(t *testing.T) {
	srv := newTestServer(t)
	token, err := srv.tokens.Issue("p1", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	u := "ws" + srv.URL[len("http"):] + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// Flood requests without reading any replies, then drop the socket.
	for i := 0; i < 64; i++ {
		if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
			break
		}
	}
	_ = conn.UnderlyingConn().Close()

	deadline := time.Now().Add(5 * time.Second)
	for srv.feed.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("handler still subscribed after client left")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

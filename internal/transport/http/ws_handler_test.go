package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trivia-quiz-engine/internal/app"
	"trivia-quiz-engine/internal/domain"
	"trivia-quiz-engine/internal/infra/memory"
	"trivia-quiz-engine/internal/testutil"
)

func TestWebSocketQuizFlow(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "general-knowledge", "easy")

	_, payload := readNext(conn, t, "session")
	if payload["id"] == "" || payload["total"] != float64(domain.QuestionsPerSet) {
		t.Fatalf("unexpected session payload %v", payload)
	}
	state := readState(conn, t, "active")
	question := state["question"].(map[string]any)
	if question["index"] != float64(0) || len(question["options"].([]any)) != 4 {
		t.Fatalf("unexpected first question %v", question)
	}

	// Advancing before the reveal is rejected.
	send(t, conn, "next", nil)
	_, payload = readNext(conn, t, "error")
	if !strings.Contains(payload["message"].(string), "invalid session transition") {
		t.Fatalf("unexpected error %v", payload)
	}

	for i := 0; i < domain.QuestionsPerSet; i++ {
		send(t, conn, "select", map[string]any{"answer": "right"})
		send(t, conn, "submit", nil)
		revealed := readState(conn, t, "revealed")
		reveal := revealed["reveal"].(map[string]any)
		if reveal["correct"] != true || revealed["score"] != float64(i+1) {
			t.Fatalf("question %d: unexpected reveal %v", i, revealed)
		}
		send(t, conn, "next", nil)
	}

	readState(conn, t, "finished")
	_, summary := readNext(conn, t, "summary")
	if summary["correct"] != float64(domain.QuestionsPerSet) || summary["answered"] != float64(domain.QuestionsPerSet) {
		t.Fatalf("unexpected summary %v", summary)
	}
	if len(summary["results"].([]any)) != domain.QuestionsPerSet {
		t.Fatalf("expected a result per question, got %v", summary["results"])
	}

	send(t, conn, "retry", nil)
	restarted := readState(conn, t, "active")
	if restarted["score"] != float64(0) || restarted["question"].(map[string]any)["index"] != float64(0) {
		t.Fatalf("expected fresh run after retry, got %v", restarted)
	}
}

func TestWebSocketUnknownTopic(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "astrology", "easy")

	_, session := readNext(conn, t, "session")
	if session["total"] != float64(0) {
		t.Fatalf("expected no questions for a failed load, got %v", session["total"])
	}
	_, payload := readNext(conn, t, "error")
	if payload["message"] != "Invalid quiz category selected." {
		t.Fatalf("unexpected error %v", payload)
	}
	state := readState(conn, t, "errored")
	if state["error"] != "Invalid quiz category selected." {
		t.Fatalf("expected error in snapshot, got %v", state)
	}
}

func TestWebSocketRejectsUnknownAnswer(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, "science-nature", "medium")

	readNext(conn, t, "session")
	readState(conn, t, "active")
	send(t, conn, "select", map[string]any{"answer": "not an option"})
	_, payload := readNext(conn, t, "error")
	if !strings.Contains(payload["message"].(string), "not an option") {
		t.Fatalf("unexpected error %v", payload)
	}
	send(t, conn, "shout", nil)
	_, payload = readNext(conn, t, "error")
	if payload["message"] != "unsupported message type" {
		t.Fatalf("unexpected error %v", payload)
	}
}

func TestWebSocketReportsShortSetSize(t *testing.T) {
	server := httptest.NewServer(NewRouter(newEngineWith(3, memory.NewSessionStore()), nil))
	defer server.Close()
	conn := dial(t, server, "arts-literature", "hard")

	_, payload := readNext(conn, t, "session")
	if payload["total"] != float64(3) {
		t.Fatalf("expected total 3, got %v", payload["total"])
	}
	state := readState(conn, t, "active")
	if state["question"].(map[string]any)["total"] != float64(3) {
		t.Fatalf("unexpected question view %v", state["question"])
	}
}

func TestWebSocketRefreshesLivenessOnMessages(t *testing.T) {
	store := &touchingStore{SessionStore: memory.NewSessionStore()}
	server := httptest.NewServer(NewRouter(newEngineWith(domain.QuestionsPerSet, store), nil))
	defer server.Close()
	conn := dial(t, server, "general-knowledge", "medium")

	_, payload := readNext(conn, t, "session")
	readState(conn, t, "active")
	send(t, conn, "select", map[string]any{"answer": "right"})
	send(t, conn, "submit", nil)
	readState(conn, t, "revealed")

	if got := store.touched(); len(got) != 2 || got[0] != payload["id"] {
		t.Fatalf("expected a refresh per inbound message, got %v", got)
	}
}

type touchingStore struct {
	*memory.SessionStore
	mu  sync.Mutex
	ids []string
}

func (s *touchingStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	return nil
}

func (s *touchingStore) touched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func TestWebSocketRequiresTopicAndDifficulty(t *testing.T) {
	server := newTestServer(t)

	res, err := http.Get(server.URL + "/ws?topic=general-knowledge")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
}

func TestRouterTopicsAndHealth(t *testing.T) {
	server := newTestServer(t)

	res, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected health body %q", body)
	}

	res, err = http.Get(server.URL + "/topics")
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	defer res.Body.Close()
	var topics []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&topics); err != nil {
		t.Fatalf("decode topics: %v", err)
	}
	if len(topics) != 4 || topics[0]["id"] != "general-knowledge" {
		t.Fatalf("unexpected topics %v", topics)
	}
	if _, leaked := topics[0]["CategoryID"]; leaked {
		t.Fatalf("category id should not be exposed")
	}
}

func TestRouterGate(t *testing.T) {
	engine := newTestEngine()
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	server := httptest.NewServer(NewRouter(engine, deny))
	defer server.Close()

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/topics":  http.StatusUnauthorized,
		"/ws":      http.StatusUnauthorized,
	} {
		res, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, res.StatusCode)
		}
	}
}

func newTestEngine() *app.Engine {
	return newEngineWith(domain.QuestionsPerSet, memory.NewSessionStore())
}

func newEngineWith(perTopic int, sessions app.SessionRepository) *app.Engine {
	records := map[int][]domain.RawQuestion{}
	for _, topic := range domain.Topics() {
		for i := 0; i < perTopic; i++ {
			records[topic.CategoryID] = append(records[topic.CategoryID], domain.RawQuestion{
				Question:         fmt.Sprintf("Question %d &amp; more?", i+1),
				CorrectAnswer:    "right",
				IncorrectAnswers: []string{"wrong-1", "wrong-2", "wrong-3"},
			})
		}
	}
	repo := memory.NewQuestionRepository(memory.NewStaticQuestionSource(records))
	return app.NewEngine(repo, sessions, app.WithScheduler(testutil.NewFakeScheduler()))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewRouter(newTestEngine(), nil))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, topic, difficulty string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?topic=" + topic + "&difficulty=" + difficulty
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

// readState skips state messages until one reaches phase.
func readState(conn *websocket.Conn, t *testing.T, phase string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		_, payload := readNext(conn, t, "state")
		if payload["phase"] == phase {
			return payload
		}
	}
	t.Fatalf("no state reached phase %s", phase)
	return nil
}

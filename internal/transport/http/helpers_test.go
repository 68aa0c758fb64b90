package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hub"
	"live-quiz-service/internal/infra/memory"
)

const ownerID = 7

type testServer struct {
	*httptest.Server
	svc    *app.RoomService
	reg    *hub.Registry
	tokens *auth.JWTService
}

func newTestServer(t *testing.T, withAuth bool) *testServer {
	t.Helper()
	store := memory.NewRoomStore()
	store.AddUser(ownerID, "quizmaster")
	metrics := hub.NewMetrics()
	reg := hub.NewRegistry(zap.NewNop(), metrics)
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[int64]domain.Quiz{1: sampleQuiz()}), time.Minute)
	svc := app.NewRoomService(store, quizzes, memory.NewSessionStore(), reg, zap.NewNop())
	reg.OnDrop(svc.Dropped)

	var tokens *auth.JWTService
	if withAuth {
		tokens = auth.NewJWTService("test-secret", time.Hour)
	}
	srv := httptest.NewServer(NewRouter(RouterConfig{
		Service: svc,
		Tokens:  tokens,
		Metrics: metrics,
		Logger:  zap.NewNop(),
		JoinURL: "https://quiz.example.com/join",
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, svc: svc, reg: reg, tokens: tokens}
}

func (s *testServer) createRoom(t *testing.T) domain.Room {
	t.Helper()
	r, err := s.svc.CreateRoom(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return r
}

func (s *testServer) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := s.tokens.Generate(userID, "quizmaster")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (s *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

func (s *testServer) waitForHost(t *testing.T, code string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !s.reg.HasHost(code) {
		if time.Now().After(deadline) {
			t.Fatalf("host never attached to %s", code)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readEvent reads until an event with the given name arrives.
func readEvent(t *testing.T, conn *websocket.Conn, name string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if msg["event"] == name {
			return msg
		}
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:        1,
		CreatorID: ownerID,
		Title:     "Arithmetic",
		Questions: []domain.Question{
			{
				ID:     10,
				QuizID: 1,
				Text:   "What is 2 + 2?",
				Choices: []domain.Choice{
					{ID: 100, QuestionID: 10, Text: "3"},
					{ID: 101, QuestionID: 10, Text: "4", IsCorrect: true},
				},
			},
		},
	}
}

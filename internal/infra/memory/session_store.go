package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(code string) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	if !ok {
		session = app.NewSession(code)
		s.sessions[code] = session
	}
	session.Retain()
	return session
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *SessionStore) Release(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	if !ok {
		return
	}
	if session.Release() == 0 {
		delete(s.sessions, code)
	}
}

// LiveRooms lists the codes of the sessions held by this process.
func (s *SessionStore) LiveRooms(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.sessions))
	for code := range s.sessions {
		codes = append(codes, code)
	}
	return codes, nil
}

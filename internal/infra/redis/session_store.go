package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions live in process memory; Redis only carries a liveness marker per
// room (room:live:{code}) so operators can see which rooms are being played.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		logger:   logger,
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
	// best-effort; refreshed on every new connection
	if err := s.client.Set(context.Background(), liveKey(code), "1", s.ttl).Err(); err != nil {
		s.logger.Warn("mark room live", zap.String("room", code), zap.Error(err))
	}
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
	if session.Release() > 0 {
		return
	}
	delete(s.sessions, code)
	if err := s.client.Del(context.Background(), liveKey(code)).Err(); err != nil {
		s.logger.Warn("clear room marker", zap.String("room", code), zap.Error(err))
	}
}

// LiveRooms lists room codes currently marked live in Redis.
func (s *SessionStore) LiveRooms(ctx context.Context) ([]string, error) {
	var codes []string
	iter := s.client.Scan(ctx, 0, liveKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		codes = append(codes, iter.Val()[len(liveKeyPrefix):])
	}
	return codes, iter.Err()
}

const liveKeyPrefix = "room:live:"

func liveKey(code string) string {
	return liveKeyPrefix + code
}

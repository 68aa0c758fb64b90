package app

import (
	"context"
	"sync"
	"sync/atomic"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hub"
)

// Session is the in-process state of one live room.
//
// mu serializes every mutation of the room: status and cursor changes,
// approvals, and the rank assignment plus answer insert of a submission.
// outbox orders delivery. A command takes outbox before releasing mu, so the
// events of two commands never interleave and no network write happens while
// mu is held.
type Session struct {
	code string
	refs int32

	mu      sync.Mutex
	room    domain.Room
	loaded  bool
	correct map[int64]int // question id -> correct answers accepted so far
	roles   map[hub.Conn]hub.Role
	bound   map[hub.Conn]int64 // player connection -> participant id

	outbox sync.Mutex
}

// NewSession is exported for infrastructure layers that own session lifecycles.
func NewSession(code string) *Session {
	return &Session{
		code:    code,
		correct: make(map[int64]int),
		roles:   make(map[hub.Conn]hub.Role),
		bound:   make(map[hub.Conn]int64),
	}
}

// Retain marks one more connection as attached to the session.
func (s *Session) Retain() {
	atomic.AddInt32(&s.refs, 1)
}

// Release detaches one connection and returns how many remain.
func (s *Session) Release() int {
	n := atomic.AddInt32(&s.refs, -1)
	if n < 0 {
		atomic.StoreInt32(&s.refs, 0)
		n = 0
	}
	return int(n)
}

func (s *Session) roomLocked(ctx context.Context, store RoomStore) (domain.Room, error) {
	if s.loaded {
		return s.room, nil
	}
	r, err := store.GetRoom(ctx, s.code)
	if err != nil {
		return domain.Room{}, err
	}
	s.room = r
	s.loaded = true
	return r, nil
}

// correctCountLocked returns how many correct answers the question already has
// in this room. The store is consulted once per question; afterwards the
// in-memory counter is authoritative.
func (s *Session) correctCountLocked(ctx context.Context, store RoomStore, roomID, questionID int64) (int, error) {
	if n, ok := s.correct[questionID]; ok {
		return n, nil
	}
	n, err := store.CountCorrectAnswers(ctx, roomID, questionID)
	if err != nil {
		return 0, err
	}
	s.correct[questionID] = n
	return n, nil
}

func (s *Session) resetCountersLocked() {
	s.correct = make(map[int64]int)
}

func (s *Session) detachLocked(conn hub.Conn) {
	delete(s.roles, conn)
	delete(s.bound, conn)
}

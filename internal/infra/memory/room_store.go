package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

type answerKey struct {
	participantID int64
	questionID    int64
}

// RoomStore keeps rooms, participants and answers in process memory.
type RoomStore struct {
	now func() time.Time

	mu           sync.Mutex
	nextID       int64
	rooms        map[string]domain.Room
	participants map[int64]domain.Participant
	answers      map[answerKey]domain.Answer
	users        map[int64]string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		now:          time.Now,
		rooms:        make(map[string]domain.Room),
		participants: make(map[int64]domain.Participant),
		answers:      make(map[answerKey]domain.Answer),
		users:        make(map[int64]string),
	}
}

// AddUser registers a username for id.
func (s *RoomStore) AddUser(id int64, username string) {
	s.mu.Lock()
	s.users[id] = username
	s.mu.Unlock()
}

func (s *RoomStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *RoomStore) CreateRoom(_ context.Context, r domain.Room) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.Code]; exists {
		return domain.Room{}, domain.ErrRoomCodeTaken
	}
	r.ID = s.id()
	if r.Status == "" {
		r.Status = domain.StatusWaiting
	}
	r.CreatedAt = s.now()
	s.rooms[r.Code] = r
	return r, nil
}

func (s *RoomStore) GetRoom(_ context.Context, code string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return r, nil
}

func (s *RoomStore) UpdateRoom(_ context.Context, r domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rooms[r.Code]
	if !ok || existing.ID != r.ID {
		return domain.ErrRoomNotFound
	}
	r.CreatedAt = existing.CreatedAt
	s.rooms[r.Code] = r
	return nil
}

func (s *RoomStore) AddParticipant(_ context.Context, roomID int64, userID *int64, nickname string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.roomExistsLocked(roomID) {
		return domain.Participant{}, domain.ErrRoomNotFound
	}
	p := domain.Participant{
		ID:       s.id(),
		RoomID:   roomID,
		UserID:   userID,
		Nickname: nickname,
		JoinedAt: s.now(),
	}
	s.participants[p.ID] = p
	return p, nil
}

func (s *RoomStore) roomExistsLocked(roomID int64) bool {
	for _, r := range s.rooms {
		if r.ID == roomID {
			return true
		}
	}
	return false
}

func (s *RoomStore) GetParticipant(_ context.Context, id int64) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

// ListParticipants returns the room's participants in join order.
func (s *RoomStore) ListParticipants(_ context.Context, roomID int64) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Participant, 0)
	for _, p := range s.participants {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RoomStore) SetApproval(_ context.Context, participantID int64, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.IsApproved = approved
	s.participants[participantID] = p
	return nil
}

func (s *RoomStore) RecordAnswer(_ context.Context, answer *domain.Answer) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[answer.ParticipantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	key := answerKey{participantID: answer.ParticipantID, questionID: answer.QuestionID}
	if _, dup := s.answers[key]; dup {
		return domain.Participant{}, domain.ErrDuplicateAnswer
	}

	answer.ID = s.id()
	answer.AnsweredAt = s.now()
	s.answers[key] = *answer
	p.Score += answer.Points
	s.participants[p.ID] = p
	return p, nil
}

func (s *RoomStore) CountCorrectAnswers(_ context.Context, roomID, questionID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, a := range s.answers {
		if key.questionID != questionID || !a.IsCorrect {
			continue
		}
		if s.participants[key.participantID].RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (s *RoomStore) ResetScores(_ context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.participants {
		if p.RoomID != roomID {
			continue
		}
		p.Score = 0
		s.participants[id] = p
	}
	for key := range s.answers {
		if s.participants[key.participantID].RoomID == roomID {
			delete(s.answers, key)
		}
	}
	return nil
}

// Answers returns the recorded answers of a participant, ordered by id.
func (s *RoomStore) Answers(participantID int64) []domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Answer
	for key, a := range s.answers {
		if key.participantID == participantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *RoomStore) Username(_ context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.users[userID]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return name, nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hub"
	"live-quiz-service/internal/room"
	"live-quiz-service/internal/scoring"
)

const (
	pausedMessage  = "Quiz paused"
	resumedMessage = "Quiz resumed"

	createRoomAttempts = 5
)

// RoomStore persists rooms, participants and answers.
type RoomStore interface {
	CreateRoom(ctx context.Context, r domain.Room) (domain.Room, error)
	GetRoom(ctx context.Context, code string) (domain.Room, error)
	UpdateRoom(ctx context.Context, r domain.Room) error
	AddParticipant(ctx context.Context, roomID int64, userID *int64, nickname string) (domain.Participant, error)
	GetParticipant(ctx context.Context, id int64) (domain.Participant, error)
	ListParticipants(ctx context.Context, roomID int64) ([]domain.Participant, error)
	SetApproval(ctx context.Context, participantID int64, approved bool) error
	// RecordAnswer inserts the answer and adds its points to the participant
	// score in one atomic step. A second answer by the same participant to the
	// same question fails with domain.ErrDuplicateAnswer.
	RecordAnswer(ctx context.Context, answer *domain.Answer) (domain.Participant, error)
	CountCorrectAnswers(ctx context.Context, roomID, questionID int64) (int, error)
	// ResetScores zeroes every participant score of the room and deletes their answers.
	ResetScores(ctx context.Context, roomID int64) error
	Username(ctx context.Context, userID int64) (string, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	// Invalidate drops any cached copy so the next read hits the backing store.
	Invalidate(ctx context.Context, quizID int64) error
}

// SessionRepository holds the live sessions of this process. GetOrCreate
// attaches a reference that must be returned with Release; the session is
// dropped once nothing references it.
type SessionRepository interface {
	GetOrCreate(code string) *Session
	Get(code string) (*Session, bool)
	Release(code string)
	// LiveRooms lists the codes of rooms with at least one attached connection.
	LiveRooms(ctx context.Context) ([]string, error)
}

// Registry is the connection fan-out used by the service.
type Registry interface {
	Register(code string, conn hub.Conn, role hub.Role)
	Unregister(code string, conn hub.Conn, role hub.Role) bool
	Broadcast(code string, event domain.Event, excludeHost bool)
	SendToHost(code string, event domain.Event)
	SendTo(code string, conn hub.Conn, event domain.Event)
	IsHost(code string, conn hub.Conn) bool
	PlayerCount(code string) int
}

// RoomInfo is the public summary of a room.
type RoomInfo struct {
	RoomCode          string            `json:"room_code"`
	QuizID            int64             `json:"quiz_id"`
	Status            domain.RoomStatus `json:"status"`
	ParticipantsCount int               `json:"participants_count"`
}

// RoomService coordinates live rooms: every intent for a room is applied under
// that room's session lock, persisted, and then delivered in order.
type RoomService struct {
	store    RoomStore
	quizzes  QuizRepository
	sessions SessionRepository
	hub      Registry
	logger   *zap.Logger
	newCode  func() string
}

func NewRoomService(store RoomStore, quizzes QuizRepository, sessions SessionRepository, registry Registry, logger *zap.Logger) *RoomService {
	return &RoomService{
		store:    store,
		quizzes:  quizzes,
		sessions: sessions,
		hub:      registry,
		logger:   logger,
		newCode:  newRoomCode,
	}
}

func newRoomCode() string {
	return strings.ToUpper(uuid.NewString()[:6])
}

// CreateRoom opens a waiting room for the quiz. When ownerID is set the quiz
// must belong to that user.
func (s *RoomService) CreateRoom(ctx context.Context, quizID int64, ownerID *int64) (domain.Room, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Room{}, err
	}
	if ownerID != nil && quiz.CreatorID != *ownerID {
		return domain.Room{}, domain.ErrUnauthorized
	}

	for attempt := 0; attempt < createRoomAttempts; attempt++ {
		created, err := s.store.CreateRoom(ctx, domain.Room{
			Code:   s.newCode(),
			QuizID: quiz.ID,
			Status: domain.StatusWaiting,
		})
		if errors.Is(err, domain.ErrRoomCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		s.logger.Info("room created", zap.String("room", created.Code), zap.Int64("quiz_id", quiz.ID))
		return created, nil
	}
	return domain.Room{}, domain.ErrRoomCodeTaken
}

// RefreshQuiz drops the cached copy of a quiz after it was edited. When
// ownerID is set the quiz must belong to that user. Rooms pick up the new
// content on their next transition.
func (s *RoomService) RefreshQuiz(ctx context.Context, quizID int64, ownerID *int64) error {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if ownerID != nil && quiz.CreatorID != *ownerID {
		return domain.ErrUnauthorized
	}
	if err := s.quizzes.Invalidate(ctx, quizID); err != nil {
		return err
	}
	s.logger.Info("quiz cache invalidated", zap.Int64("quiz_id", quizID))
	return nil
}

// LiveRooms lists the rooms currently served.
func (s *RoomService) LiveRooms(ctx context.Context) ([]string, error) {
	codes, err := s.sessions.LiveRooms(ctx)
	if err != nil {
		return nil, err
	}
	if codes == nil {
		codes = []string{}
	}
	sort.Strings(codes)
	return codes, nil
}

// RoomInfo reports the room status and its approved participant count.
func (s *RoomService) RoomInfo(ctx context.Context, code string) (RoomInfo, error) {
	r, err := s.currentRoom(ctx, code)
	if err != nil {
		return RoomInfo{}, err
	}
	participants, err := s.store.ListParticipants(ctx, r.ID)
	if err != nil {
		return RoomInfo{}, err
	}
	return RoomInfo{
		RoomCode:          r.Code,
		QuizID:            r.QuizID,
		Status:            r.Status,
		ParticipantsCount: approvedCount(participants),
	}, nil
}

// Leaderboard returns the ordered scoreboard of approved participants.
func (s *RoomService) Leaderboard(ctx context.Context, code string) ([]domain.LeaderboardEntry, error) {
	r, err := s.currentRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.leaderboard(ctx, r.ID)
}

// AuthorizeHost checks that userID owns the quiz currently bound to the room.
func (s *RoomService) AuthorizeHost(ctx context.Context, code string, userID int64) error {
	r, err := s.currentRoom(ctx, code)
	if err != nil {
		return err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, r.QuizID)
	if err != nil {
		return err
	}
	if quiz.CreatorID != userID {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *RoomService) currentRoom(ctx context.Context, code string) (domain.Room, error) {
	if sess, ok := s.sessions.Get(code); ok {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.roomLocked(ctx, s.store)
	}
	return s.store.GetRoom(ctx, code)
}

// Connect attaches conn to the room under role.
func (s *RoomService) Connect(ctx context.Context, code string, conn hub.Conn, role hub.Role) error {
	r, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return err
	}

	sess := s.sessions.GetOrCreate(code)
	sess.mu.Lock()
	if !sess.loaded {
		sess.room = r
		sess.loaded = true
	}
	sess.roles[conn] = role
	sess.outbox.Lock()
	sess.mu.Unlock()
	s.hub.Register(code, conn, role)
	sess.outbox.Unlock()

	s.logger.Debug("connection attached", zap.String("room", code), zap.String("conn", conn.ID()), zap.String("role", string(role)))
	return nil
}

// Disconnect detaches conn. Losing the current host is announced to the room;
// losing a player is reported to the host.
func (s *RoomService) Disconnect(code string, conn hub.Conn, role hub.Role) {
	removed := s.hub.Unregister(code, conn, role)

	sess, ok := s.sessions.Get(code)
	if !ok {
		return
	}
	sess.mu.Lock()
	_, attached := sess.roles[conn]
	participantID := sess.bound[conn]
	sess.detachLocked(conn)
	var out []outgoing
	if removed {
		out = s.leftEvents(code, participantID, role)
	}
	s.deliver(sess, out)
	if attached {
		s.sessions.Release(code)
	}

	s.logger.Debug("connection detached", zap.String("room", code), zap.String("conn", conn.ID()), zap.Bool("removed", removed))
}

// Dropped handles a connection the registry removed after a failed send.
// It runs the disconnect notifications asynchronously because the registry
// may call it while a delivery of the same room is in progress.
func (s *RoomService) Dropped(code string, conn hub.Conn, role hub.Role) {
	go func() {
		sess, ok := s.sessions.Get(code)
		if !ok {
			return
		}
		sess.mu.Lock()
		out := s.leftEvents(code, sess.bound[conn], role)
		s.deliver(sess, out)
	}()
}

func (s *RoomService) leftEvents(code string, participantID int64, role hub.Role) []outgoing {
	if role == hub.RoleHost {
		return []outgoing{toRoom(domain.SimpleEvent{Event: domain.EventHostDisconnected})}
	}
	return []outgoing{toHost(domain.PlayerLeftEvent{
		Event:             domain.EventPlayerLeft,
		ParticipantID:     participantID,
		ParticipantsCount: s.hub.PlayerCount(code),
	})}
}

// Handle applies one intent received from conn. Host-only intents from any
// other connection fail with domain.ErrUnauthorized and change nothing.
// Unknown actions are ignored.
func (s *RoomService) Handle(ctx context.Context, code string, conn hub.Conn, intent domain.Intent) error {
	sess, ok := s.sessions.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}

	handler, hostOnly, known := s.handlerFor(intent.Action)
	if !known {
		s.logger.Debug("ignoring unknown action", zap.String("room", code), zap.String("action", intent.Action))
		return nil
	}

	sess.mu.Lock()
	role, attached := sess.roles[conn]
	switch {
	case !attached:
		sess.mu.Unlock()
		return domain.ErrUnauthorized
	case hostOnly && !s.hub.IsHost(code, conn):
		sess.mu.Unlock()
		s.logger.Warn("rejected host intent", zap.String("room", code), zap.String("conn", conn.ID()), zap.String("action", intent.Action))
		return domain.ErrUnauthorized
	case !hostOnly && role != hub.RolePlayer:
		sess.mu.Unlock()
		return domain.ErrUnauthorized
	}

	out, err := handler(ctx, sess, conn, intent)
	if err != nil {
		sess.mu.Unlock()
		return fmt.Errorf("%s: %w", intent.Action, err)
	}
	s.deliver(sess, out)
	return nil
}

type intentHandler func(ctx context.Context, sess *Session, conn hub.Conn, intent domain.Intent) ([]outgoing, error)

func (s *RoomService) handlerFor(action string) (intentHandler, bool, bool) {
	switch action {
	case domain.ActionApprovePlayer:
		return s.approvePlayer, true, true
	case domain.ActionRejectPlayer:
		return s.rejectPlayer, true, true
	case domain.ActionStartQuiz:
		return s.transition(func(r domain.Room, q domain.Quiz) (domain.Room, []room.Step, error) {
			return room.Start(r, len(q.Questions))
		}), true, true
	case domain.ActionNextQuestion:
		return s.transition(func(r domain.Room, q domain.Quiz) (domain.Room, []room.Step, error) {
			return room.Advance(r, len(q.Questions))
		}), true, true
	case domain.ActionPauseQuiz:
		return s.transition(func(r domain.Room, _ domain.Quiz) (domain.Room, []room.Step, error) {
			return room.Pause(r)
		}), true, true
	case domain.ActionResumeQuiz:
		return s.transition(func(r domain.Room, _ domain.Quiz) (domain.Room, []room.Step, error) {
			return room.Resume(r)
		}), true, true
	case domain.ActionFinishQuiz:
		return s.transition(func(r domain.Room, _ domain.Quiz) (domain.Room, []room.Step, error) {
			return room.Finish(r)
		}), true, true
	case domain.ActionChangeQuiz:
		return s.changeQuiz, true, true
	case domain.ActionShowLeaderboard:
		return s.showLeaderboard, true, true
	case domain.ActionJoinRoom:
		return s.joinRoom, false, true
	case domain.ActionSubmitAnswer:
		return s.submitAnswer, false, true
	}
	return nil, false, false
}

func (s *RoomService) approvePlayer(ctx context.Context, sess *Session, _ hub.Conn, intent domain.Intent) ([]outgoing, error) {
	r, err := sess.roomLocked(ctx, s.store)
	if err != nil {
		return nil, err
	}
	if _, err := s.participantInRoom(ctx, r.ID, intent.ParticipantID); err != nil {
		return nil, err
	}
	if err := s.store.SetApproval(ctx, intent.ParticipantID, true); err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return []outgoing{
		toRoom(domain.ParticipantEvent{Event: domain.EventPlayerApproved, ParticipantID: intent.ParticipantID}),
		toRoom(domain.CountEvent{Event: domain.EventParticipantsUpdate, Count: approvedCount(participants)}),
	}, nil
}

func (s *RoomService) rejectPlayer(ctx context.Context, sess *Session, _ hub.Conn, intent domain.Intent) ([]outgoing, error) {
	r, err := sess.roomLocked(ctx, s.store)
	if err != nil {
		return nil, err
	}
	if _, err := s.participantInRoom(ctx, r.ID, intent.ParticipantID); err != nil {
		return nil, err
	}
	if err := s.store.SetApproval(ctx, intent.ParticipantID, false); err != nil {
		return nil, err
	}
	return []outgoing{
		toRoom(domain.ParticipantEvent{Event: domain.EventPlayerRejected, ParticipantID: intent.ParticipantID}),
	}, nil
}

func (s *RoomService) showLeaderboard(ctx context.Context, sess *Session, _ hub.Conn, _ domain.Intent) ([]outgoing, error) {
	r, err := sess.roomLocked(ctx, s.store)
	if err != nil {
		return nil, err
	}
	entries, err := s.leaderboard(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return []outgoing{toRoom(domain.NewLeaderboardEvent(domain.EventLeaderboard, entries))}, nil
}

type transitionFunc func(domain.Room, domain.Quiz) (domain.Room, []room.Step, error)

// transition runs a state machine command against the room's current quiz.
func (s *RoomService) transition(fn transitionFunc) intentHandler {
	return func(ctx context.Context, sess *Session, _ hub.Conn, intent domain.Intent) ([]outgoing, error) {
		current, err := sess.roomLocked(ctx, s.store)
		if err != nil {
			return nil, err
		}
		quiz, err := s.quiz(ctx, current.QuizID)
		if errors.Is(err, domain.ErrQuizNotFound) {
			s.logger.Warn("room has no quiz, ignoring transition", zap.String("room", current.Code), zap.Int64("quiz_id", current.QuizID))
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		next, steps, err := fn(current, quiz)
		if errors.Is(err, room.ErrInvalidTransition) {
			s.logger.Debug("ignoring transition", zap.String("room", current.Code), zap.String("action", intent.Action), zap.String("status", string(current.Status)))
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return s.apply(ctx, sess, quiz, next, steps)
	}
}

func (s *RoomService) changeQuiz(ctx context.Context, sess *Session, _ hub.Conn, intent domain.Intent) ([]outgoing, error) {
	current, err := sess.roomLocked(ctx, s.store)
	if err != nil {
		return nil, err
	}
	// The room belongs to the creator of its current quiz; only quizzes of that
	// same creator may replace it.
	owned, err := s.quiz(ctx, current.QuizID)
	if errors.Is(err, domain.ErrQuizNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	quiz, err := s.quiz(ctx, intent.QuizID)
	if err != nil {
		return nil, err
	}
	if quiz.CreatorID != owned.CreatorID {
		s.logger.Warn("rejected quiz change to a foreign quiz",
			zap.String("room", current.Code), zap.Int64("quiz_id", quiz.ID), zap.Int64("owner_id", owned.CreatorID))
		return nil, domain.ErrUnauthorized
	}
	next, steps, err := room.ChangeQuiz(current, quiz.ID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, sess, quiz, next, steps)
}

// apply performs the side effects of steps, persists next and only then
// adopts it as the session's room. Any store failure leaves the session at
// its last committed room and emits nothing.
func (s *RoomService) apply(ctx context.Context, sess *Session, quiz domain.Quiz, next domain.Room, steps []room.Step) ([]outgoing, error) {
	out := make([]outgoing, 0, len(steps))
	for _, step := range steps {
		switch step.Kind {
		case room.StepResetScores:
			if err := s.store.ResetScores(ctx, next.ID); err != nil {
				return nil, err
			}
			sess.resetCountersLocked()
		case room.StepShowResults, room.StepFinished:
			entries, err := s.leaderboard(ctx, next.ID)
			if err != nil {
				return nil, err
			}
			name := domain.EventShowResults
			if step.Kind == room.StepFinished {
				name = domain.EventQuizFinished
			}
			out = append(out, toRoom(domain.NewLeaderboardEvent(name, entries)))
		case room.StepQuestion:
			out = append(out, toRoom(domain.NewQuestionEvent(step.Event, quiz.Questions[step.Index])))
		case room.StepPaused:
			out = append(out, toRoom(domain.MessageEvent{Event: domain.EventQuizPaused, Message: pausedMessage}))
		case room.StepResumed:
			out = append(out, toRoom(domain.MessageEvent{Event: domain.EventQuizResumed, Message: resumedMessage}))
		case room.StepQuizChanged:
			out = append(out, toRoom(domain.QuizChangedEvent{Event: domain.EventQuizChanged, QuizID: quiz.ID, QuizTitle: quiz.Title}))
		}
	}

	if err := s.store.UpdateRoom(ctx, next); err != nil {
		return nil, err
	}
	sess.room = next
	s.logger.Info("room updated",
		zap.String("room", next.Code),
		zap.String("status", string(next.Status)),
		zap.Int("question_index", next.CurrentQuestionIndex))
	return out, nil
}

func (s *RoomService) joinRoom(ctx context.Context, sess *Session, conn hub.Conn, intent domain.Intent) ([]outgoing, error) {
	if id, ok := sess.bound[conn]; ok {
		return []outgoing{toConn(conn, domain.ParticipantEvent{Event: domain.EventWaitingApproval, ParticipantID: id})}, nil
	}

	r, err := sess.roomLocked(ctx, s.store)
	if err != nil {
		return nil, err
	}
	participant, err := s.store.AddParticipant(ctx, r.ID, intent.UserID, intent.Nickname)
	if err != nil {
		return nil, err
	}
	sess.bound[conn] = participant.ID

	s.logger.Info("join requested", zap.String("room", r.Code), zap.Int64("participant_id", participant.ID))
	return []outgoing{
		toHost(domain.PlayerRequestEvent{
			Event: domain.EventPlayerRequest,
			Participant: domain.PendingPlayer{
				ID:       participant.ID,
				Username: s.displayName(ctx, participant),
				UserID:   participant.UserID,
			},
		}),
		toConn(conn, domain.ParticipantEvent{Event: domain.EventWaitingApproval, ParticipantID: participant.ID}),
	}, nil
}

// submitAnswer scores one answer. Every rejection replies with a zero result
// to the submitter and changes nothing.
func (s *RoomService) submitAnswer(ctx context.Context, sess *Session, conn hub.Conn, intent domain.Intent) ([]outgoing, error) {
	rejected := []outgoing{toConn(conn, domain.NewAnswerResultEvent(domain.AnswerResult{}))}

	current, err := sess.roomLocked(ctx, s.store)
	if err != nil {
		return nil, err
	}
	if !room.AcceptsAnswers(current.Status) {
		return rejected, nil
	}

	participantID := intent.ParticipantID
	if bound, ok := sess.bound[conn]; ok {
		if participantID != 0 && participantID != bound {
			return rejected, nil
		}
		participantID = bound
	}
	participant, err := s.participantInRoom(ctx, current.ID, participantID)
	if errors.Is(err, domain.ErrParticipantNotFound) || (err == nil && !participant.IsApproved) {
		return rejected, nil
	}
	if err != nil {
		return nil, err
	}

	quiz, err := s.quiz(ctx, current.QuizID)
	if err != nil {
		return nil, err
	}
	question, choice, err := scoring.Resolve(quiz, intent.QuestionID, intent.ChoiceID)
	if err != nil {
		return rejected, nil
	}
	// Earlier questions stay answerable; questions not shown yet are not.
	if quiz.QuestionIndex(question.ID) > current.CurrentQuestionIndex {
		return rejected, nil
	}

	rank := 0
	if choice.IsCorrect {
		count, err := sess.correctCountLocked(ctx, s.store, current.ID, question.ID)
		if err != nil {
			return nil, err
		}
		rank = count + 1
	}
	points := scoring.Points(choice.IsCorrect, rank, intent.ResponseTime, question.TimerSeconds)

	answer := &domain.Answer{
		ParticipantID: participant.ID,
		QuestionID:    question.ID,
		ChoiceID:      choice.ID,
		ResponseTime:  intent.ResponseTime,
		IsCorrect:     choice.IsCorrect,
		Points:        points,
		Rank:          rank,
	}
	if _, err := s.store.RecordAnswer(ctx, answer); err != nil {
		if errors.Is(err, domain.ErrDuplicateAnswer) {
			return rejected, nil
		}
		return nil, err
	}
	if choice.IsCorrect {
		sess.correct[question.ID] = rank
	}

	s.logger.Debug("answer recorded",
		zap.String("room", current.Code),
		zap.Int64("participant_id", participant.ID),
		zap.Int64("question_id", question.ID),
		zap.Int("rank", rank),
		zap.Float64("points", points))
	return []outgoing{toConn(conn, domain.NewAnswerResultEvent(domain.AnswerResult{
		ScoreEarned: points,
		IsCorrect:   choice.IsCorrect,
	}))}, nil
}

func (s *RoomService) participantInRoom(ctx context.Context, roomID, participantID int64) (domain.Participant, error) {
	participant, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	if participant.RoomID != roomID {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return participant, nil
}

func (s *RoomService) quiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz.WithDefaults(), nil
}

func (s *RoomService) leaderboard(ctx context.Context, roomID int64) ([]domain.LeaderboardEntry, error) {
	participants, err := s.store.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		if !p.IsApproved {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			Username:      s.displayName(ctx, p),
			Score:         p.Score,
		})
	}
	return scoring.Leaderboard(entries), nil
}

func (s *RoomService) displayName(ctx context.Context, p domain.Participant) string {
	var username string
	if p.Nickname == "" && p.UserID != nil {
		name, err := s.store.Username(ctx, *p.UserID)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Warn("resolve username", zap.Int64("user_id", *p.UserID), zap.Error(err))
		}
		username = name
	}
	return p.DisplayName(username)
}

func approvedCount(participants []domain.Participant) int {
	n := 0
	for _, p := range participants {
		if p.IsApproved {
			n++
		}
	}
	return n
}

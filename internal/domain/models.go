package domain

import (
	"fmt"
	"time"
)

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	StatusWaiting        RoomStatus = "waiting"
	StatusActive         RoomStatus = "active"
	StatusPaused         RoomStatus = "paused"
	StatusWaitingForNext RoomStatus = "waiting_for_next"
	StatusFinished       RoomStatus = "finished"
)

// Room is one live instance of a quiz being played.
type Room struct {
	ID                   int64      `json:"id"`
	Code                 string     `json:"code"`
	QuizID               int64      `json:"quiz_id"`
	Status               RoomStatus `json:"status"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Participant is a player inside a room.
type Participant struct {
	ID         int64
	RoomID     int64
	UserID     *int64
	Nickname   string
	IsApproved bool
	Score      float64
	JoinedAt   time.Time
}

// DisplayName resolves the name shown to the room: nickname, then the
// registered username, then a synthesized fallback.
func (p Participant) DisplayName(username string) string {
	if p.Nickname != "" {
		return p.Nickname
	}
	if username != "" {
		return username
	}
	return fmt.Sprintf("Player %d", p.ID)
}

// Choice is one selectable answer of a question.
type Choice struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Question is ordered by authoring order within its quiz.
type Question struct {
	ID           int64    `json:"id"`
	QuizID       int64    `json:"quiz_id"`
	Text         string   `json:"text"`
	TimerSeconds int      `json:"timer_seconds"`
	Type         string   `json:"question_type"`
	Choices      []Choice `json:"choices"`
}

// Choice returns the choice with the given id if it belongs to the question.
func (q Question) Choice(choiceID int64) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == choiceID {
			return c, true
		}
	}
	return Choice{}, false
}

// DefaultTimerSeconds applies to quizzes that do not set their own default.
const DefaultTimerSeconds = 20

// Quiz is an ordered sequence of questions.
type Quiz struct {
	ID                  int64      `json:"id"`
	CreatorID           int64      `json:"creator_id"`
	Title               string     `json:"title"`
	DefaultTimerSeconds int        `json:"default_timer_seconds"`
	Questions           []Question `json:"questions"`
}

// Question looks up a question of the quiz by id.
func (q Quiz) Question(questionID int64) (Question, bool) {
	i := q.QuestionIndex(questionID)
	if i < 0 {
		return Question{}, false
	}
	return q.Questions[i], true
}

// QuestionIndex returns the position of the question in the quiz, or -1.
func (q Quiz) QuestionIndex(questionID int64) int {
	for i, question := range q.Questions {
		if question.ID == questionID {
			return i
		}
	}
	return -1
}

// WithDefaults fills unset question timers from the quiz default.
func (q Quiz) WithDefaults() Quiz {
	timer := q.DefaultTimerSeconds
	if timer <= 0 {
		timer = DefaultTimerSeconds
	}
	questions := make([]Question, len(q.Questions))
	copy(questions, q.Questions)
	for i := range questions {
		if questions[i].TimerSeconds <= 0 {
			questions[i].TimerSeconds = timer
		}
	}
	q.Questions = questions
	return q
}

// Answer records one participant's response to one question.
type Answer struct {
	ID            int64
	ParticipantID int64
	QuestionID    int64
	ChoiceID      int64
	ResponseTime  float64 // seconds since question start, as reported by the client
	IsCorrect     bool
	Points        float64
	Rank          int // order among correct answers, 0 when incorrect
	AnsweredAt    time.Time
}

// LeaderboardEntry is one row of a room scoreboard.
type LeaderboardEntry struct {
	ParticipantID int64   `json:"participant_id"`
	UserID        *int64  `json:"user_id,omitempty"`
	Username      string  `json:"username"`
	Score         float64 `json:"score"`
}

// AnswerResult is the outcome reported back to the submitter.
type AnswerResult struct {
	ScoreEarned float64 `json:"score_earned"`
	IsCorrect   bool    `json:"is_correct"`
}

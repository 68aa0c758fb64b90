package domain

// Intent is a client-to-server message. Field presence depends on Action.
type Intent struct {
	Action        string  `json:"action"`
	ParticipantID int64   `json:"participant_id,omitempty"`
	UserID        *int64  `json:"user_id,omitempty"`
	Nickname      string  `json:"nickname,omitempty"`
	QuestionID    int64   `json:"question_id,omitempty"`
	ChoiceID      int64   `json:"choice_id,omitempty"`
	ResponseTime  float64 `json:"response_time,omitempty"`
	QuizID        int64   `json:"quiz_id,omitempty"`
}

// Host intents.
const (
	ActionApprovePlayer   = "approve_player"
	ActionRejectPlayer    = "reject_player"
	ActionStartQuiz       = "start_quiz"
	ActionNextQuestion    = "next_question"
	ActionPauseQuiz       = "pause_quiz"
	ActionResumeQuiz      = "resume_quiz"
	ActionFinishQuiz      = "finish_quiz"
	ActionChangeQuiz      = "change_quiz"
	ActionShowLeaderboard = "show_leaderboard"
)

// Player intents.
const (
	ActionJoinRoom     = "join_room"
	ActionSubmitAnswer = "submit_answer"
)

// Event names sent to clients.
const (
	EventQuizStarted        = "quiz_started"
	EventNextQuestion       = "next_question"
	EventShowResults        = "show_results"
	EventLeaderboard        = "leaderboard"
	EventQuizFinished       = "quiz_finished"
	EventQuizPaused         = "quiz_paused"
	EventQuizResumed        = "quiz_resumed"
	EventQuizChanged        = "quiz_changed"
	EventAnswerResult       = "answer_result"
	EventPlayerRequest      = "player_request"
	EventWaitingApproval    = "waiting_approval"
	EventPlayerApproved     = "player_approved"
	EventPlayerRejected     = "player_rejected"
	EventParticipantsUpdate = "participants_update"
	EventHostDisconnected   = "host_disconnected"
	EventPlayerLeft         = "player_left"
)

// Event is a server-to-client message; its JSON form carries the name under "event".
type Event interface {
	Name() string
}

// ChoiceView is a choice as shown to players; correctness is never included.
type ChoiceView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// QuestionView is a question as shown to players.
type QuestionView struct {
	ID           int64        `json:"id"`
	Text         string       `json:"text"`
	TimerSeconds int          `json:"timer_seconds"`
	Choices      []ChoiceView `json:"choices"`
}

// NewQuestionView strips answer keys from a question.
func NewQuestionView(q Question) QuestionView {
	choices := make([]ChoiceView, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, ChoiceView{ID: c.ID, Text: c.Text})
	}
	return QuestionView{ID: q.ID, Text: q.Text, TimerSeconds: q.TimerSeconds, Choices: choices}
}

// QuestionEvent is quiz_started or next_question.
type QuestionEvent struct {
	Event    string       `json:"event"`
	Question QuestionView `json:"question"`
}

func (e QuestionEvent) Name() string { return e.Event }

// LeaderboardEvent is show_results, leaderboard or quiz_finished.
type LeaderboardEvent struct {
	Event       string             `json:"event"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

func (e LeaderboardEvent) Name() string { return e.Event }

// MessageEvent carries a human readable notice (pause/resume).
type MessageEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

func (e MessageEvent) Name() string { return e.Event }

// QuizChangedEvent announces that the room now plays another quiz.
type QuizChangedEvent struct {
	Event     string `json:"event"`
	QuizID    int64  `json:"quiz_id"`
	QuizTitle string `json:"quiz_title"`
}

func (e QuizChangedEvent) Name() string { return e.Event }

// AnswerResultEvent is unicast to the submitter only.
type AnswerResultEvent struct {
	Event string `json:"event"`
	AnswerResult
}

func (e AnswerResultEvent) Name() string { return e.Event }

// PendingPlayer identifies a join request for the host.
type PendingPlayer struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	UserID   *int64 `json:"user_id"`
}

// PlayerRequestEvent asks the host to approve a join.
type PlayerRequestEvent struct {
	Event       string        `json:"event"`
	Participant PendingPlayer `json:"participant"`
}

func (e PlayerRequestEvent) Name() string { return e.Event }

// ParticipantEvent is waiting_approval, player_approved or player_rejected.
type ParticipantEvent struct {
	Event         string `json:"event"`
	ParticipantID int64  `json:"participant_id"`
}

func (e ParticipantEvent) Name() string { return e.Event }

// CountEvent is participants_update.
type CountEvent struct {
	Event string `json:"event"`
	Count int    `json:"count"`
}

func (e CountEvent) Name() string { return e.Event }

// PlayerLeftEvent tells the host a player connection went away.
type PlayerLeftEvent struct {
	Event             string `json:"event"`
	ParticipantID     int64  `json:"participant_id,omitempty"`
	ParticipantsCount int    `json:"participants_count"`
}

func (e PlayerLeftEvent) Name() string { return e.Event }

// SimpleEvent carries no payload beyond its name.
type SimpleEvent struct {
	Event string `json:"event"`
}

func (e SimpleEvent) Name() string { return e.Event }

func NewQuestionEvent(name string, q Question) QuestionEvent {
	return QuestionEvent{Event: name, Question: NewQuestionView(q)}
}

func NewLeaderboardEvent(name string, entries []LeaderboardEntry) LeaderboardEvent {
	if entries == nil {
		entries = []LeaderboardEntry{}
	}
	return LeaderboardEvent{Event: name, Leaderboard: entries}
}

func NewAnswerResultEvent(result AnswerResult) AnswerResultEvent {
	return AnswerResultEvent{Event: EventAnswerResult, AnswerResult: result}
}

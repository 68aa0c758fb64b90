// Package room holds the lifecycle rules of a quiz room. Transitions are pure:
// they return the next room value and the ordered steps the caller must turn
// into side effects and events.
package room

import (
	"errors"

	"live-quiz-service/internal/domain"
)

// ErrInvalidTransition is returned when a command is not allowed in the room's current status.
var ErrInvalidTransition = errors.New("invalid room transition")

// StepKind identifies one effect of a transition.
type StepKind int

const (
	// StepResetScores clears every participant score and answer of the room.
	StepResetScores StepKind = iota
	// StepQuestion emits the question at Step.Index under Step.Event.
	StepQuestion
	// StepShowResults emits the current leaderboard before the cursor moves.
	StepShowResults
	// StepFinished emits quiz_finished with the final leaderboard.
	StepFinished
	StepPaused
	StepResumed
	StepQuizChanged
)

// Step is one ordered effect of a transition.
type Step struct {
	Kind  StepKind
	Index int
	Event string
}

// Start resets the room and shows the first question. A quiz without
// questions finishes immediately.
func Start(r domain.Room, questions int) (domain.Room, []Step, error) {
	switch r.Status {
	case domain.StatusWaiting, domain.StatusWaitingForNext, domain.StatusFinished:
	default:
		return r, nil, ErrInvalidTransition
	}

	r.CurrentQuestionIndex = 0
	steps := []Step{{Kind: StepResetScores}}
	if questions == 0 {
		r.Status = domain.StatusFinished
		return r, append(steps, Step{Kind: StepFinished}), nil
	}
	r.Status = domain.StatusActive
	return r, append(steps, Step{Kind: StepQuestion, Index: 0, Event: domain.EventQuizStarted}), nil
}

// Advance shows results for the current question, then either moves the
// cursor forward or finishes the quiz when the cursor is exhausted.
func Advance(r domain.Room, questions int) (domain.Room, []Step, error) {
	if r.Status != domain.StatusActive {
		return r, nil, ErrInvalidTransition
	}

	steps := []Step{{Kind: StepShowResults}}
	next := r.CurrentQuestionIndex + 1
	if next < questions {
		r.CurrentQuestionIndex = next
		return r, append(steps, Step{Kind: StepQuestion, Index: next, Event: domain.EventNextQuestion}), nil
	}

	r.Status = domain.StatusFinished
	r.CurrentQuestionIndex = questions
	return r, append(steps, Step{Kind: StepFinished}), nil
}

// Pause suspends answering.
func Pause(r domain.Room) (domain.Room, []Step, error) {
	if r.Status != domain.StatusActive {
		return r, nil, ErrInvalidTransition
	}
	r.Status = domain.StatusPaused
	return r, []Step{{Kind: StepPaused}}, nil
}

// Resume re-opens answering after a pause.
func Resume(r domain.Room) (domain.Room, []Step, error) {
	if r.Status != domain.StatusPaused {
		return r, nil, ErrInvalidTransition
	}
	r.Status = domain.StatusActive
	return r, []Step{{Kind: StepResumed}}, nil
}

// Finish ends the session from any status and shows the final leaderboard.
// The cursor is kept so the host can see where the session stopped.
func Finish(r domain.Room) (domain.Room, []Step, error) {
	r.Status = domain.StatusWaitingForNext
	return r, []Step{{Kind: StepFinished}}, nil
}

// ChangeQuiz rebinds the room to another quiz and fully resets it.
func ChangeQuiz(r domain.Room, quizID int64) (domain.Room, []Step, error) {
	r.QuizID = quizID
	r.CurrentQuestionIndex = 0
	r.Status = domain.StatusWaiting
	return r, []Step{{Kind: StepResetScores}, {Kind: StepQuizChanged}}, nil
}

// AcceptsAnswers reports whether submissions may be scored in this status.
func AcceptsAnswers(status domain.RoomStatus) bool {
	return status == domain.StatusActive
}

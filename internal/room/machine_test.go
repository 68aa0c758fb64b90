package room

import (
	"errors"
	"testing"

	"live-quiz-service/internal/domain"
)

func kinds(steps []Step) []StepKind {
	out := make([]StepKind, len(steps))
	for i, s := range steps {
		out[i] = s.Kind
	}
	return out
}

func sameKinds(got []Step, want ...StepKind) bool {
	k := kinds(got)
	if len(k) != len(want) {
		return false
	}
	for i := range k {
		if k[i] != want[i] {
			return false
		}
	}
	return true
}

func TestStartFromWaiting(t *testing.T) {
	r := domain.Room{Status: domain.StatusWaiting, CurrentQuestionIndex: 3}
	next, steps, err := Start(r, 3)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if next.Status != domain.StatusActive || next.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected room after start: %+v", next)
	}
	if !sameKinds(steps, StepResetScores, StepQuestion) {
		t.Fatalf("unexpected steps %v", kinds(steps))
	}
	if steps[1].Index != 0 || steps[1].Event != domain.EventQuizStarted {
		t.Fatalf("first question step = %+v", steps[1])
	}
}

func TestStartRestartsFinishedRoom(t *testing.T) {
	for _, status := range []domain.RoomStatus{domain.StatusFinished, domain.StatusWaitingForNext} {
		next, _, err := Start(domain.Room{Status: status, CurrentQuestionIndex: 2}, 2)
		if err != nil {
			t.Fatalf("start from %s: %v", status, err)
		}
		if next.Status != domain.StatusActive || next.CurrentQuestionIndex != 0 {
			t.Fatalf("start from %s gave %+v", status, next)
		}
	}
}

func TestStartIgnoredWhileRunning(t *testing.T) {
	for _, status := range []domain.RoomStatus{domain.StatusActive, domain.StatusPaused} {
		r := domain.Room{Status: status, CurrentQuestionIndex: 1}
		next, steps, err := Start(r, 3)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("start from %s: expected invalid transition, got %v", status, err)
		}
		if next != r || len(steps) != 0 {
			t.Fatalf("rejected start must not change the room: %+v %v", next, steps)
		}
	}
}

func TestStartWithoutQuestionsFinishes(t *testing.T) {
	next, steps, err := Start(domain.Room{Status: domain.StatusWaiting}, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if next.Status != domain.StatusFinished {
		t.Fatalf("expected finished, got %s", next.Status)
	}
	if !sameKinds(steps, StepResetScores, StepFinished) {
		t.Fatalf("must not emit a question: %v", kinds(steps))
	}
}

func TestAdvanceThroughQuiz(t *testing.T) {
	r := domain.Room{Status: domain.StatusActive}

	r, steps, err := Advance(r, 3)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if r.CurrentQuestionIndex != 1 || !sameKinds(steps, StepShowResults, StepQuestion) {
		t.Fatalf("advance to 1: room %+v steps %v", r, kinds(steps))
	}
	if steps[1].Event != domain.EventNextQuestion || steps[1].Index != 1 {
		t.Fatalf("question step = %+v", steps[1])
	}

	r, _, _ = Advance(r, 3)
	if r.CurrentQuestionIndex != 2 {
		t.Fatalf("expected cursor 2, got %d", r.CurrentQuestionIndex)
	}

	r, steps, err = Advance(r, 3)
	if err != nil {
		t.Fatalf("advance at last question: %v", err)
	}
	if !sameKinds(steps, StepShowResults, StepFinished) {
		t.Fatalf("last advance steps %v", kinds(steps))
	}
	if r.Status != domain.StatusFinished || r.CurrentQuestionIndex != 3 {
		t.Fatalf("expected finished with exhausted cursor, got %+v", r)
	}

	if _, _, err := Advance(r, 3); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance after finish should be rejected, got %v", err)
	}
}

func TestAdvanceRequiresActive(t *testing.T) {
	for _, status := range []domain.RoomStatus{domain.StatusWaiting, domain.StatusPaused, domain.StatusWaitingForNext} {
		if _, _, err := Advance(domain.Room{Status: status}, 3); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("advance from %s: got %v", status, err)
		}
	}
}

func TestPauseResume(t *testing.T) {
	r := domain.Room{Status: domain.StatusActive, CurrentQuestionIndex: 1}

	r, steps, err := Pause(r)
	if err != nil || r.Status != domain.StatusPaused || !sameKinds(steps, StepPaused) {
		t.Fatalf("pause: %+v %v %v", r, kinds(steps), err)
	}
	if _, _, err := Pause(r); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double pause should be rejected, got %v", err)
	}

	r, steps, err = Resume(r)
	if err != nil || r.Status != domain.StatusActive || !sameKinds(steps, StepResumed) {
		t.Fatalf("resume: %+v %v %v", r, kinds(steps), err)
	}
	if r.CurrentQuestionIndex != 1 {
		t.Fatalf("pause/resume must keep the cursor, got %d", r.CurrentQuestionIndex)
	}
	if _, _, err := Resume(r); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resume while active should be rejected, got %v", err)
	}
}

func TestFinishFromAnyStatus(t *testing.T) {
	statuses := []domain.RoomStatus{
		domain.StatusWaiting, domain.StatusActive, domain.StatusPaused,
		domain.StatusWaitingForNext, domain.StatusFinished,
	}
	for _, status := range statuses {
		next, steps, err := Finish(domain.Room{Status: status, CurrentQuestionIndex: 1})
		if err != nil {
			t.Fatalf("finish from %s: %v", status, err)
		}
		if next.Status != domain.StatusWaitingForNext || !sameKinds(steps, StepFinished) {
			t.Fatalf("finish from %s: %+v %v", status, next, kinds(steps))
		}
	}
}

func TestChangeQuizResets(t *testing.T) {
	r := domain.Room{QuizID: 1, Status: domain.StatusActive, CurrentQuestionIndex: 2}
	next, steps, err := ChangeQuiz(r, 9)
	if err != nil {
		t.Fatalf("change quiz: %v", err)
	}
	if next.QuizID != 9 || next.Status != domain.StatusWaiting || next.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected room %+v", next)
	}
	if !sameKinds(steps, StepResetScores, StepQuizChanged) {
		t.Fatalf("unexpected steps %v", kinds(steps))
	}
}

func TestAcceptsAnswers(t *testing.T) {
	if !AcceptsAnswers(domain.StatusActive) {
		t.Fatalf("active room must accept answers")
	}
	for _, status := range []domain.RoomStatus{domain.StatusWaiting, domain.StatusPaused, domain.StatusFinished} {
		if AcceptsAnswers(status) {
			t.Fatalf("%s room must not accept answers", status)
		}
	}
}

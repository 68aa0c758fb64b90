// Package scoring computes answer points and orders leaderboards.
package scoring

import (
	"math"
	"sort"

	"live-quiz-service/internal/domain"
)

const (
	// MaxPoints is awarded to the first correct answer submitted instantly.
	MaxPoints = 1000
	// GraceSeconds is how far past the timer an answer is still recorded. Anything later scores zero.
	GraceSeconds = 2.0
	// FloorOrderFactor applies to every correct answer ranked after third.
	FloorOrderFactor = 0.4
)

var orderFactors = map[int]float64{1: 1.0, 2: 0.8, 3: 0.6}

// OrderFactor maps the 1-based rank among correct answers to a multiplier.
func OrderFactor(rank int) float64 {
	if f, ok := orderFactors[rank]; ok {
		return f
	}
	return FloorOrderFactor
}

// TimeFactor is 1.0 for an instant answer and 0.5 at the deadline.
// A non-positive timer disables the time bonus.
func TimeFactor(responseTime float64, timerSeconds int) float64 {
	if timerSeconds <= 0 {
		return 1.0
	}
	timer := float64(timerSeconds)
	effective := math.Min(math.Max(responseTime, 0), timer)
	return 1 - (effective / timer / 2)
}

// Late reports whether the answer arrived after the grace window. The window
// applies to the raw response time, so a zero timer still allows GraceSeconds.
func Late(responseTime float64, timerSeconds int) bool {
	return responseTime > float64(timerSeconds)+GraceSeconds
}

// Points scores one submission. rank is only meaningful for correct answers.
func Points(correct bool, rank int, responseTime float64, timerSeconds int) float64 {
	points := 0.0
	if correct {
		points = math.RoundToEven(MaxPoints * OrderFactor(rank) * TimeFactor(responseTime, timerSeconds))
	}
	if Late(responseTime, timerSeconds) {
		points = 0
	}
	return points
}

// Resolve finds the submitted question and choice in the quiz. A choice that
// exists but belongs to another question is reported as not found.
func Resolve(quiz domain.Quiz, questionID, choiceID int64) (domain.Question, domain.Choice, error) {
	question, found := quiz.Question(questionID)
	if !found {
		return domain.Question{}, domain.Choice{}, domain.ErrQuestionNotFound
	}
	choice, found := question.Choice(choiceID)
	if !found {
		return domain.Question{}, domain.Choice{}, domain.ErrChoiceNotFound
	}
	return question, choice, nil
}

// Leaderboard sorts entries by score descending. Equal scores keep join order
// (ascending participant id) so repeated snapshots are identical.
func Leaderboard(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	sorted := make([]domain.LeaderboardEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ParticipantID < sorted[j].ParticipantID
	})
	return sorted
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// QuizLoader loads quiz content from the quizzes, questions and choices tables.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	err := l.pool.QueryRow(ctx,
		`SELECT creator_id, title, default_timer_seconds FROM quizzes WHERE id=$1`, quizID,
	).Scan(&quiz.CreatorID, &quiz.Title, &quiz.DefaultTimerSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id, text, timer_seconds, question_type FROM questions WHERE quiz_id=$1 ORDER BY id`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	index := make(map[int64]int)
	for rows.Next() {
		q := domain.Question{QuizID: quizID}
		if err := rows.Scan(&q.ID, &q.Text, &q.TimerSeconds, &q.Type); err != nil {
			rows.Close()
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(quiz.Questions)
		quiz.Questions = append(quiz.Questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}

	rows, err = l.pool.Query(ctx, `
		SELECT c.id, c.question_id, c.text, c.is_correct
		FROM choices c JOIN questions q ON q.id = c.question_id
		WHERE q.quiz_id=$1
		ORDER BY c.id`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load choices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.Text, &c.IsCorrect); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan choice: %w", err)
		}
		i := index[c.QuestionID]
		quiz.Questions[i].Choices = append(quiz.Questions[i].Choices, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load choices: %w", err)
	}
	return quiz, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// RoomStore persists rooms, participants and answers.
type RoomStore struct {
	pool *pgxpool.Pool
}

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

func (s *RoomStore) CreateRoom(ctx context.Context, r domain.Room) (domain.Room, error) {
	if r.Status == "" {
		r.Status = domain.StatusWaiting
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (code, quiz_id, status, current_question_index)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		r.Code, r.QuizID, string(r.Status), r.CurrentQuestionIndex,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return domain.Room{}, domain.ErrRoomCodeTaken
		}
		if pgCode(err) == foreignKeyViolation {
			return domain.Room{}, domain.ErrQuizNotFound
		}
		return domain.Room{}, fmt.Errorf("insert room: %w", err)
	}
	return r, nil
}

func (s *RoomStore) GetRoom(ctx context.Context, code string) (domain.Room, error) {
	var (
		r      domain.Room
		status string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, quiz_id, status, current_question_index, created_at
		FROM rooms WHERE code=$1`, code,
	).Scan(&r.ID, &r.Code, &r.QuizID, &status, &r.CurrentQuestionIndex, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room: %w", err)
	}
	r.Status = domain.RoomStatus(status)
	return r, nil
}

func (s *RoomStore) UpdateRoom(ctx context.Context, r domain.Room) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rooms SET quiz_id=$1, status=$2, current_question_index=$3
		WHERE id=$4 AND code=$5`,
		r.QuizID, string(r.Status), r.CurrentQuestionIndex, r.ID, r.Code)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) AddParticipant(ctx context.Context, roomID int64, userID *int64, nickname string) (domain.Participant, error) {
	p := domain.Participant{RoomID: roomID, UserID: userID, Nickname: nickname}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO participants (room_id, user_id, nickname)
		VALUES ($1, $2, $3)
		RETURNING id, joined_at`,
		roomID, userID, nickname,
	).Scan(&p.ID, &p.JoinedAt)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return domain.Participant{}, domain.ErrRoomNotFound
		}
		return domain.Participant{}, fmt.Errorf("insert participant: %w", err)
	}
	return p, nil
}

const participantColumns = `id, room_id, user_id, nickname, is_approved, score, joined_at`

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.ID, &p.RoomID, &p.UserID, &p.Nickname, &p.IsApproved, &p.Score, &p.JoinedAt)
	return p, err
}

func (s *RoomStore) GetParticipant(ctx context.Context, id int64) (domain.Participant, error) {
	p, err := scanParticipant(s.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (s *RoomStore) ListParticipants(ctx context.Context, roomID int64) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE room_id=$1 ORDER BY id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *RoomStore) SetApproval(ctx context.Context, participantID int64, approved bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE participants SET is_approved=$1 WHERE id=$2`, approved, participantID)
	if err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

// RecordAnswer inserts the answer and adds its points to the participant in
// one transaction. A second answer to the same question fails on the
// (participant_id, question_id) constraint.
func (s *RoomStore) RecordAnswer(ctx context.Context, answer *domain.Answer) (domain.Participant, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var rank *int
	if answer.Rank > 0 {
		rank = &answer.Rank
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO answers (participant_id, question_id, choice_id, response_time, is_correct, points, rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, answered_at`,
		answer.ParticipantID, answer.QuestionID, answer.ChoiceID, answer.ResponseTime,
		answer.IsCorrect, answer.Points, rank,
	).Scan(&answer.ID, &answer.AnsweredAt)
	if err != nil {
		switch pgCode(err) {
		case uniqueViolation:
			return domain.Participant{}, domain.ErrDuplicateAnswer
		case foreignKeyViolation:
			return domain.Participant{}, domain.ErrParticipantNotFound
		}
		return domain.Participant{}, fmt.Errorf("insert answer: %w", err)
	}

	p, err := scanParticipant(tx.QueryRow(ctx,
		`UPDATE participants SET score = score + $1 WHERE id=$2 RETURNING `+participantColumns,
		answer.Points, answer.ParticipantID))
	if err != nil {
		return domain.Participant{}, fmt.Errorf("update score: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Participant{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *RoomStore) CountCorrectAnswers(ctx context.Context, roomID, questionID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM answers a
		JOIN participants p ON p.id = a.participant_id
		WHERE p.room_id=$1 AND a.question_id=$2 AND a.is_correct`,
		roomID, questionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count correct answers: %w", err)
	}
	return n, nil
}

func (s *RoomStore) ResetScores(ctx context.Context, roomID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM answers WHERE participant_id IN (SELECT id FROM participants WHERE room_id=$1)`, roomID); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE participants SET score=0 WHERE room_id=$1`, roomID); err != nil {
		return fmt.Errorf("reset scores: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *RoomStore) Username(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT username FROM users WHERE id=$1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get username: %w", err)
	}
	return name, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room matches a code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrParticipantNotFound is returned when a participant id is unknown or belongs to another room.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceNotFound indicates a submitted choice ID is invalid or belongs to another question.
	ErrChoiceNotFound = errors.New("choice not found")
	// ErrUnauthorized is returned when a caller acts on a room or quiz it does not control.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound is returned when a registered user id is unknown.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateAnswer is returned when a participant already answered a question.
	ErrDuplicateAnswer = errors.New("answer already recorded")
	// ErrRoomCodeTaken is returned when a generated room code collides with an existing room.
	ErrRoomCodeTaken = errors.New("room code already in use")
)

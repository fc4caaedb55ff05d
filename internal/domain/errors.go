package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a challenge room is not in the store.
	ErrRoomNotFound = errors.New("challenge room not found")
	// ErrNotAuthorized is returned when the actor may not perform the action on the room.
	ErrNotAuthorized = errors.New("not authorized for this room or action")
	// ErrStaleQuestion indicates the submitted question is not the current one.
	ErrStaleQuestion = errors.New("invalid or stale question reference")
	// ErrGenerationFailed is returned when a full question set could not be produced.
	ErrGenerationFailed = errors.New("AI_QUIZ_GENERATION_FAILED")
	// ErrGenerationInProgress is returned for an accept racing an outstanding generation.
	ErrGenerationInProgress = errors.New("question generation already in progress")
	// ErrUserNotFound indicates the identity source does not know the user.
	ErrUserNotFound = errors.New("user not found")
	// ErrCourseNotFound indicates the course content could not be loaded.
	ErrCourseNotFound = errors.New("course not found")
	// ErrUserBusy is returned when a user already has a pending or active challenge.
	ErrUserBusy = errors.New("user already in an active challenge")
	// ErrSelfChallenge is returned when challenger and challenged are the same user.
	ErrSelfChallenge = errors.New("cannot challenge yourself")
	// ErrRoomNotPending is returned when accepting or declining a room that already started.
	ErrRoomNotPending = errors.New("challenge is no longer pending")
	// ErrRoomNotActive is returned when answering in a room that is not active.
	ErrRoomNotActive = errors.New("challenge is not active")
	// ErrDuplicateAnswer is returned for a second answer to the same question.
	ErrDuplicateAnswer = errors.New("answer already submitted for this question")
	// ErrInvalidPayload indicates a malformed or incomplete client message.
	ErrInvalidPayload = errors.New("invalid payload")
)

// ErrRoomExists is returned when a room id is already taken.
var ErrRoomExists = errors.New("challenge room already exists")

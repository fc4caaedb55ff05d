package app

import (
	"context"

	"challenge-service/internal/domain"
)

// RoomRepository abstracts where in-flight challenge rooms live (in-memory, Redis-marked, etc).
type RoomRepository interface {
	Create(room *Room) (string, error)
	Get(roomID string) (*Room, bool)
	// FindByParticipant returns the pending or active room the user takes part in.
	FindByParticipant(userID string) (*Room, bool)
	Remove(roomID string)
	List() []*Room
}

// Conn is a live connection handle that protocol events can be delivered to.
type Conn interface {
	ID() string
	Send(evt Event) error
}

// PresenceRegistry maps a user to their single current connection.
type PresenceRegistry interface {
	Identify(userID string, conn Conn)
	Resolve(userID string) (Conn, bool)
	// Forget drops the mapping owned by conn and reports which user it belonged to.
	Forget(conn Conn) (string, bool)
}

// CourseSource loads read-only course content.
type CourseSource interface {
	GetCourse(ctx context.Context, courseID string) (domain.Course, error)
}

// UserSource resolves user identities for display names.
type UserSource interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// QuestionGenerator turns lesson content into exactly req.Count questions or fails.
type QuestionGenerator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) ([]domain.Question, error)
}

// ResultSink durably stores finalized challenge outcomes.
type ResultSink interface {
	RecordResult(ctx context.Context, result domain.ChallengeResult) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.ChallengeResult, error)
}

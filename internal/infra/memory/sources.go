package memory

import (
	"context"

	"challenge-service/internal/domain"
)

// CourseLoader fetches course content from a backing store (e.g., document DB).
type CourseLoader interface {
	LoadCourse(ctx context.Context, courseID string) (domain.Course, error)
}

// StaticCourseLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticCourseLoader struct {
	courses map[string]domain.Course
}

func NewStaticCourseLoader(courses map[string]domain.Course) *StaticCourseLoader {
	return &StaticCourseLoader{courses: courses}
}

func (l *StaticCourseLoader) LoadCourse(_ context.Context, courseID string) (domain.Course, error) {
	if course, ok := l.courses[courseID]; ok {
		return course, nil
	}
	return domain.Course{}, domain.ErrCourseNotFound
}

// StaticUserSource resolves users from an in-memory map.
type StaticUserSource struct {
	users map[string]domain.User
}

func NewStaticUserSource(users ...domain.User) *StaticUserSource {
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return &StaticUserSource{users: byID}
}

func (s *StaticUserSource) GetUser(_ context.Context, userID string) (domain.User, error) {
	if u, ok := s.users[userID]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrUserNotFound
}

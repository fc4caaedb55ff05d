package memory

import (
	"context"
	"testing"
	"time"

	"challenge-service/internal/domain"
)

func TestCourseRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		CourseLoader: NewStaticCourseLoader(map[string]domain.Course{
			"go-101": sampleCourse(),
		}),
	}
	repo := NewCourseRepository(loader, time.Minute)

	if _, err := repo.GetCourse(context.Background(), "go-101"); err != nil {
		t.Fatalf("get course: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetCourse(context.Background(), "go-101"); err != nil {
		t.Fatalf("get course 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestCourseRepositoryReloadsAfterTTL(t *testing.T) {
	loader := &countingLoader{
		CourseLoader: NewStaticCourseLoader(map[string]domain.Course{"go-101": sampleCourse()}),
	}
	repo := NewCourseRepository(loader, time.Minute)
	now := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	repo.GetCourse(context.Background(), "go-101")
	now = now.Add(2 * time.Minute)
	repo.GetCourse(context.Background(), "go-101")
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", loader.calls)
	}
}

func TestCourseRepositoryUnknownCourse(t *testing.T) {
	repo := NewCourseRepository(NewStaticCourseLoader(nil), time.Minute)
	if _, err := repo.GetCourse(context.Background(), "missing"); err != domain.ErrCourseNotFound {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}

type countingLoader struct {
	CourseLoader
	calls int
}

func (l *countingLoader) LoadCourse(ctx context.Context, courseID string) (domain.Course, error) {
	l.calls++
	return l.CourseLoader.LoadCourse(ctx, courseID)
}

func sampleCourse() domain.Course {
	return domain.Course{
		ID:    "go-101",
		Title: "Go 101",
		Lessons: []domain.Lesson{
			{Title: "Goroutines", Content: "Goroutines are lightweight threads.", Points: []string{"go keyword starts a goroutine"}},
		},
	}
}

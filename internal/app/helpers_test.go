package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"challenge-service/internal/infra/memory"
)

const correctOption = "correct"

// recorder is a Conn that keeps every event delivered to it.
type recorder struct {
	id     string
	mu     sync.Mutex
	events []app.Event
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(evt app.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

func (r *recorder) last(eventType string) (app.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i], true
		}
	}
	return app.Event{}, false
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

// stubGenerator returns n canned questions, optionally failing or blocking until released.
type stubGenerator struct {
	mu      sync.Mutex
	n       int
	err     error
	block   chan struct{}
	started chan struct{}
	calls   int
}

func (g *stubGenerator) Generate(ctx context.Context, req domain.GenerationRequest) ([]domain.Question, error) {
	g.mu.Lock()
	g.calls++
	n, err, block, started := g.n, g.err, g.block, g.started
	g.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, domain.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Text:          fmt.Sprintf("Question %d about %s?", i+1, req.CourseTitle),
			Options:       []string{"wrong", correctOption, "maybe", "never"},
			CorrectAnswer: correctOption,
		})
	}
	return questions, nil
}

func (g *stubGenerator) set(n int, err error) {
	g.mu.Lock()
	g.n, g.err = n, err
	g.mu.Unlock()
}

type failingSink struct {
	mu    sync.Mutex
	calls int
}

func (s *failingSink) RecordResult(context.Context, domain.ChallengeResult) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return errors.New("database unavailable")
}

func (s *failingSink) ListByUser(context.Context, string, int) ([]domain.ChallengeResult, error) {
	return nil, errors.New("database unavailable")
}

// splitSink fails one user's write at once and stores everyone else's after a delay.
type splitSink struct {
	failFor string
	delay   time.Duration

	mu     sync.Mutex
	stored []domain.ChallengeResult
	errs   []error
}

func (s *splitSink) RecordResult(ctx context.Context, result domain.ChallengeResult) error {
	if result.UserID == s.failFor {
		return errors.New("constraint violation")
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		s.mu.Lock()
		s.errs = append(s.errs, ctx.Err())
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Lock()
	s.stored = append(s.stored, result)
	s.mu.Unlock()
	return nil
}

func (s *splitSink) ListByUser(context.Context, string, int) ([]domain.ChallengeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChallengeResult(nil), s.stored...), nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	service  *app.ChallengeService
	rooms    *memory.RoomStore
	presence *memory.Presence
	results  *memory.ResultStore
	gen      *stubGenerator
	alice    *recorder
	bob      *recorder
	carol    *recorder
}

func testOptions() app.Options {
	return app.Options{
		QuestionCount:     5,
		QuestionTimeLimit: 30 * time.Second,
		PersistTimeout:    time.Second,
	}
}

func newHarness(t *testing.T, opts app.Options, configure func(*app.Deps)) *harness {
	t.Helper()
	h := &harness{
		rooms:    memory.NewRoomStore(),
		presence: memory.NewPresence(),
		results:  memory.NewResultStore(),
		gen:      &stubGenerator{n: 5},
		alice:    newRecorder("conn-alice"),
		bob:      newRecorder("conn-bob"),
		carol:    newRecorder("conn-carol"),
	}
	deps := app.Deps{
		Rooms:     h.rooms,
		Presence:  h.presence,
		Courses:   memory.NewCourseRepository(memory.NewStaticCourseLoader(sampleCourses()), time.Minute),
		Users:     memory.NewStaticUserSource(sampleUsers()...),
		Generator: h.gen,
		Results:   h.results,
	}
	if configure != nil {
		configure(&deps)
	}
	h.service = app.NewChallengeService(deps, opts)

	ctx := context.Background()
	for userID, conn := range map[string]*recorder{"alice": h.alice, "bob": h.bob, "carol": h.carol} {
		if err := h.service.Identify(ctx, userID, conn); err != nil {
			t.Fatalf("identify %s: %v", userID, err)
		}
	}
	return h
}

// startedRoom creates and accepts a challenge from alice to bob.
func (h *harness) startedRoom(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	room, err := h.service.CreateChallenge(ctx, "alice", "bob", "course-x")
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	if _, err := h.service.AcceptChallenge(ctx, room.RoomID, "bob"); err != nil {
		t.Fatalf("accept challenge: %v", err)
	}
	return room.RoomID
}

func currentQuestion(t *testing.T, r *recorder) app.NewQuestionPayload {
	t.Helper()
	evt, ok := r.last(app.EventNewQuestion)
	if !ok {
		t.Fatalf("no new_question received, got %v", r.types())
	}
	return evt.Payload.(app.NewQuestionPayload)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sampleUsers() []domain.User {
	return []domain.User{
		{ID: "alice", FirstName: "Alice", LastName: "Smith"},
		{ID: "bob", FirstName: "Bob", LastName: "Jones"},
		{ID: "carol", FirstName: "Carol"},
	}
}

func sampleCourses() map[string]domain.Course {
	return map[string]domain.Course{
		"course-x": {
			ID:    "course-x",
			Title: "X",
			Lessons: []domain.Lesson{
				{Title: "Basics", Content: "Variables hold values.", Points: []string{"variables hold values"}},
				{Title: "Control flow", Content: "Loops repeat work.", Points: []string{"loops repeat work"}},
			},
		},
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"challenge-service/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options tunes the protocol timings. Zero RoundTimeout, AbandonAfter and PendingTTL disable those timers.
type Options struct {
	QuestionCount     int
	QuestionTimeLimit time.Duration
	RoundDelay        time.Duration
	GraceWindow       time.Duration
	RoundTimeout      time.Duration
	AbandonAfter      time.Duration
	PendingTTL        time.Duration
	PersistTimeout    time.Duration
}

// DefaultOptions returns the standard protocol timings.
func DefaultOptions() Options {
	return Options{
		QuestionCount:     domain.DefaultQuestionCount,
		QuestionTimeLimit: 30 * time.Second,
		RoundDelay:        2 * time.Second,
		GraceWindow:       60 * time.Second,
		PersistTimeout:    10 * time.Second,
	}
}

// Deps groups the collaborators of the challenge engine.
type Deps struct {
	Rooms     RoomRepository
	Presence  PresenceRegistry
	Courses   CourseSource
	Users     UserSource
	Generator QuestionGenerator
	Results   ResultSink
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// ChallengeService drives the head-to-head challenge protocol.
type ChallengeService struct {
	rooms     RoomRepository
	presence  PresenceRegistry
	courses   CourseSource
	users     UserSource
	generator QuestionGenerator
	results   ResultSink
	opts      Options
	now       func() time.Time
	newID     func() string

	// admission serializes the busy check with room insertion.
	admission sync.Mutex

	mu            sync.Mutex
	abandonTimers map[string]*time.Timer

	background sync.WaitGroup
}

func NewChallengeService(deps Deps, opts Options) *ChallengeService {
	if opts.QuestionCount <= 0 {
		opts.QuestionCount = domain.DefaultQuestionCount
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &ChallengeService{
		rooms:         deps.Rooms,
		presence:      deps.Presence,
		courses:       deps.Courses,
		users:         deps.Users,
		generator:     deps.Generator,
		results:       deps.Results,
		opts:          opts,
		now:           now,
		newID:         uuid.NewString,
		abandonTimers: make(map[string]*time.Timer),
	}
}

// Identify binds userID to conn, replacing any previous connection for that user.
func (s *ChallengeService) Identify(_ context.Context, userID string, conn Conn) error {
	if userID == "" || conn == nil {
		return domain.ErrInvalidPayload
	}
	s.presence.Identify(userID, conn)
	s.cancelAbandon(userID)
	return nil
}

// Disconnect forgets the connection. Rooms are left untouched unless AbandonAfter is set,
// in which case a user who has not come back by then leaves their room.
func (s *ChallengeService) Disconnect(_ context.Context, conn Conn) {
	userID, ok := s.presence.Forget(conn)
	if !ok || s.opts.AbandonAfter <= 0 {
		return
	}
	if _, busy := s.rooms.FindByParticipant(userID); !busy {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, exists := s.abandonTimers[userID]; exists {
		t.Stop()
	}
	s.abandonTimers[userID] = time.AfterFunc(s.opts.AbandonAfter, func() {
		s.mu.Lock()
		delete(s.abandonTimers, userID)
		s.mu.Unlock()
		if _, online := s.presence.Resolve(userID); online {
			return
		}
		if err := s.LeaveRoom(context.Background(), "", userID, "connection lost"); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			log.Printf("abandon after disconnect for user %s: %v", userID, err)
		}
	})
}

func (s *ChallengeService) cancelAbandon(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.abandonTimers[userID]; ok {
		t.Stop()
		delete(s.abandonTimers, userID)
	}
}

// CreateChallenge opens a pending room and notifies the challenged user if they are online.
func (s *ChallengeService) CreateChallenge(ctx context.Context, challengerID, challengedID, courseID string) (domain.ChallengeRoom, error) {
	if challengerID == "" || challengedID == "" || courseID == "" {
		return domain.ChallengeRoom{}, domain.ErrInvalidPayload
	}
	if challengerID == challengedID {
		return domain.ChallengeRoom{}, domain.ErrSelfChallenge
	}

	challenger, err := s.users.GetUser(ctx, challengerID)
	if err != nil {
		return domain.ChallengeRoom{}, err
	}
	challenged, err := s.users.GetUser(ctx, challengedID)
	if err != nil {
		return domain.ChallengeRoom{}, err
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return domain.ChallengeRoom{}, err
	}

	s.admission.Lock()
	if _, busy := s.rooms.FindByParticipant(challengerID); busy {
		s.admission.Unlock()
		return domain.ChallengeRoom{}, domain.ErrUserBusy
	}
	if _, busy := s.rooms.FindByParticipant(challengedID); busy {
		s.admission.Unlock()
		return domain.ChallengeRoom{}, domain.ErrUserBusy
	}
	room := NewRoomWithClock(
		s.newID(),
		domain.Participant{UserID: challenger.ID, DisplayName: challenger.DisplayName()},
		domain.Participant{UserID: challenged.ID, DisplayName: challenged.DisplayName()},
		domain.CourseRef{CourseID: course.ID, CourseName: course.Title},
		s.now,
	)
	_, err = s.rooms.Create(room)
	s.admission.Unlock()
	if err != nil {
		return domain.ChallengeRoom{}, err
	}

	snapshot := room.Snapshot()
	log.Printf("room %s: created by %s for %s on course %s", snapshot.RoomID, challengerID, challengedID, courseID)
	s.send(challengedID, Event{Type: EventChallengeReceived, Payload: Summarize(snapshot)})
	return snapshot, nil
}

// AcceptChallenge activates a pending room for its challenged participant, generating
// questions first when the room has none. A failed generation leaves the room pending
// with no questions so the accept can be retried.
func (s *ChallengeService) AcceptChallenge(ctx context.Context, roomID, userID string) (domain.ChallengeRoom, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ChallengeRoom{}, domain.ErrRoomNotFound
	}
	if err := s.checkNotBusyElsewhere(room); err != nil {
		return domain.ChallengeRoom{}, err
	}

	needsQuestions, err := room.beginAccept(userID)
	if err != nil {
		return domain.ChallengeRoom{}, err
	}

	var questions []domain.Question
	if needsQuestions {
		questions, err = s.generateFor(ctx, room.Snapshot())
		if err != nil {
			room.abortGeneration()
			log.Printf("room %s: question generation failed: %v", roomID, err)
			return domain.ChallengeRoom{}, err
		}
	}

	snapshot, err := room.completeAccept(questions)
	if err != nil {
		return domain.ChallengeRoom{}, err
	}

	log.Printf("room %s: started with %d questions", roomID, len(snapshot.Questions))
	s.broadcast(snapshot, Event{Type: EventChallengeAccepted, Payload: RoomIDPayload{RoomID: roomID}})
	s.broadcast(snapshot, Event{Type: EventChallengeStarted, Payload: Summarize(snapshot)})
	s.emitRound(room, 0)
	return snapshot, nil
}

func (s *ChallengeService) checkNotBusyElsewhere(room *Room) error {
	snapshot := room.Snapshot()
	s.admission.Lock()
	defer s.admission.Unlock()
	for _, p := range []domain.Participant{snapshot.Challenger, snapshot.Challenged} {
		if other, busy := s.rooms.FindByParticipant(p.UserID); busy && other.ID() != room.ID() {
			return domain.ErrUserBusy
		}
	}
	return nil
}

func (s *ChallengeService) generateFor(ctx context.Context, room domain.ChallengeRoom) ([]domain.Question, error) {
	course, err := s.courses.GetCourse(ctx, room.Course.CourseID)
	if err != nil {
		return nil, err
	}
	questions, err := s.generator.Generate(ctx, domain.GenerationRequest{
		CourseTitle: course.Title,
		Lessons:     course.Lessons,
		Count:       s.opts.QuestionCount,
	})
	if err != nil {
		if errors.Is(err, domain.ErrGenerationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	if len(questions) < s.opts.QuestionCount {
		return nil, fmt.Errorf("%w: got %d of %d questions", domain.ErrGenerationFailed, len(questions), s.opts.QuestionCount)
	}
	return questions[:s.opts.QuestionCount], nil
}

// DeclineChallenge deletes a pending room and tells the other participant.
func (s *ChallengeService) DeclineChallenge(_ context.Context, roomID, userID string) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	snapshot, err := room.decline(userID)
	if err != nil {
		return err
	}
	s.rooms.Remove(roomID)

	decliner, _ := snapshot.ParticipantByID(userID)
	log.Printf("room %s: declined by %s", roomID, userID)
	s.send(snapshot.Opponent(userID).UserID, Event{Type: EventChallengeDeclined, Payload: DeclinedPayload{
		ChallengeID:  roomID,
		DeclinerID:   decliner.UserID,
		DeclinerName: decliner.DisplayName,
	}})
	return nil
}

// JoinChallenge re-binds a participant's connection to the room and returns its current view.
func (s *ChallengeService) JoinChallenge(_ context.Context, roomID, userID string, conn Conn) (RoomDataPayload, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return RoomDataPayload{}, domain.ErrRoomNotFound
	}
	snapshot := room.Snapshot()
	if !snapshot.IsParticipant(userID) {
		return RoomDataPayload{}, domain.ErrNotAuthorized
	}
	if conn != nil {
		s.presence.Identify(userID, conn)
		s.cancelAbandon(userID)
		if question, current, ok := room.roundAt(snapshot.CurrentQuestionIndex); ok {
			if err := conn.Send(Event{Type: EventNewQuestion, Payload: s.roundPayload(current, question)}); err != nil {
				log.Printf("room %s: resend round to %s: %v", roomID, userID, err)
			}
		}
	}
	return RoomData(snapshot), nil
}

// SubmitAnswer records the participant's answer for the current round.
func (s *ChallengeService) SubmitAnswer(_ context.Context, roomID, userID, questionID, answer string, timeSpent float64) (AnswerResultPayload, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return AnswerResultPayload{}, domain.ErrRoomNotFound
	}
	outcome, err := room.submit(userID, questionID, answer, timeSpent)
	if err != nil {
		return AnswerResultPayload{}, err
	}
	s.afterAnswer(room, outcome)
	return AnswerResultPayload{
		RoomID:       roomID,
		QuestionID:   questionID,
		Correct:      outcome.Record.Correct,
		PointsEarned: outcome.Record.PointsEarned,
		TotalScore:   outcome.TotalScore,
	}, nil
}

func (s *ChallengeService) afterAnswer(room *Room, outcome answerOutcome) {
	if !outcome.BothAnswered {
		return
	}
	snapshot := room.Snapshot()
	s.broadcast(snapshot, Event{Type: EventBothAnswered, Payload: BothAnsweredPayload{
		RoomID:        snapshot.RoomID,
		QuestionID:    outcome.Question.ID,
		CorrectAnswer: outcome.Question.CorrectAnswer,
	}})

	if outcome.Finished {
		s.complete(room, snapshot)
		return
	}
	next := outcome.NextIndex
	if s.opts.RoundDelay <= 0 {
		s.emitRound(room, next)
		return
	}
	time.AfterFunc(s.opts.RoundDelay, func() { s.emitRound(room, next) })
}

// emitRound sends round index to both participants, if the room still exists and is on that round.
func (s *ChallengeService) emitRound(room *Room, index int) {
	if current, ok := s.rooms.Get(room.ID()); !ok || current != room {
		return
	}
	question, snapshot, ok := room.roundAt(index)
	if !ok {
		return
	}
	s.broadcast(snapshot, Event{Type: EventNewQuestion, Payload: s.roundPayload(snapshot, question)})

	if s.opts.RoundTimeout > 0 {
		time.AfterFunc(s.opts.RoundTimeout, func() { s.timeoutRound(room, index) })
	}
}

func (s *ChallengeService) roundPayload(room domain.ChallengeRoom, question domain.Question) NewQuestionPayload {
	return NewQuestionPayload{
		RoomID:      room.RoomID,
		Question:    question.Public(),
		TimeLimit:   int(s.opts.QuestionTimeLimit / time.Second),
		RoundNumber: room.CurrentQuestionIndex + 1,
		TotalRounds: len(room.Questions),
		CourseName:  room.Course.CourseName,
	}
}

func (s *ChallengeService) timeoutRound(room *Room, index int) {
	if current, ok := s.rooms.Get(room.ID()); !ok || current != room {
		return
	}
	outcome, ok := room.autoAnswer(index, s.opts.RoundTimeout.Seconds())
	if !ok {
		return
	}
	log.Printf("room %s: round %d timed out", room.ID(), index+1)
	s.afterAnswer(room, outcome)
}

// complete announces the winner, persists results in the background and
// schedules removal after the grace window.
func (s *ChallengeService) complete(room *Room, snapshot domain.ChallengeRoom) {
	winner := DetermineWinner(snapshot)
	log.Printf("room %s: completed, winner %s", snapshot.RoomID, winner.UserID)
	s.broadcast(snapshot, Event{Type: EventChallengeResults, Payload: ResultsFor(snapshot, winner)})

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.persist(BuildResults(snapshot, winner, s.now(), s.newID))
	}()

	if s.opts.GraceWindow <= 0 {
		s.removeRoom(room)
		return
	}
	time.AfterFunc(s.opts.GraceWindow, func() { s.removeRoom(room) })
}

func (s *ChallengeService) persist(results []domain.ChallengeResult) {
	if s.results == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
	defer cancel()

	// writes are independent: one participant's failure must not cancel the other's
	var g errgroup.Group
	for _, result := range results {
		result := result
		g.Go(func() error {
			if err := s.results.RecordResult(ctx, result); err != nil {
				log.Printf("room %s: record result for %s: %v", result.ChallengeID, result.UserID, err)
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *ChallengeService) removeRoom(room *Room) {
	room.close()
	if current, ok := s.rooms.Get(room.ID()); ok && current == room {
		s.rooms.Remove(room.ID())
		log.Printf("room %s: removed", room.ID())
	}
}

// LeaveRoom abandons the user's pending or active room and notifies the opponent.
// An empty or unknown roomID falls back to the user's current room.
func (s *ChallengeService) LeaveRoom(_ context.Context, roomID, userID, customMessage string) error {
	if userID == "" {
		return domain.ErrInvalidPayload
	}
	room, ok := s.rooms.Get(roomID)
	if !ok || !room.IsLiveFor(userID) {
		room, ok = s.rooms.FindByParticipant(userID)
	}
	if !ok {
		return domain.ErrRoomNotFound
	}
	snapshot, err := room.abandon(userID)
	if err != nil {
		return err
	}
	s.rooms.Remove(snapshot.RoomID)

	leaver, _ := snapshot.ParticipantByID(userID)
	message := strings.TrimSpace(customMessage)
	if message == "" {
		message = leaver.DisplayName + " left the challenge"
	}
	log.Printf("room %s: abandoned by %s", snapshot.RoomID, userID)
	s.send(snapshot.Opponent(userID).UserID, Event{Type: EventOpponentLeft, Payload: OpponentLeftPayload{
		RoomID:        snapshot.RoomID,
		UserID:        userID,
		UserName:      leaver.DisplayName,
		CustomMessage: message,
	}})
	return nil
}

// CheckRoomStatus reports whether the user is in a pending or active room.
func (s *ChallengeService) CheckRoomStatus(_ context.Context, userID string) RoomStatusPayload {
	room, ok := s.rooms.FindByParticipant(userID)
	if !ok {
		return RoomStatusPayload{IsInRoom: false}
	}
	snapshot := room.Snapshot()
	return RoomStatusPayload{IsInRoom: true, RoomID: snapshot.RoomID, Status: snapshot.Status}
}

// GetRoom returns the participant-facing view of a room still held in memory.
func (s *ChallengeService) GetRoom(_ context.Context, roomID string) (RoomDataPayload, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return RoomDataPayload{}, domain.ErrRoomNotFound
	}
	return RoomData(room.Snapshot()), nil
}

// History lists a user's recorded challenge results, newest first.
func (s *ChallengeService) History(ctx context.Context, userID string, limit int) ([]domain.ChallengeResult, error) {
	if userID == "" {
		return nil, domain.ErrInvalidPayload
	}
	if s.results == nil {
		return []domain.ChallengeResult{}, nil
	}
	return s.results.ListByUser(ctx, userID, limit)
}

// ExpirePending removes rooms left pending longer than PendingTTL and reports how many went.
func (s *ChallengeService) ExpirePending(_ context.Context) int {
	if s.opts.PendingTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.opts.PendingTTL)
	expired := 0
	for _, room := range s.rooms.List() {
		snapshot, ok := room.expire(cutoff)
		if !ok {
			continue
		}
		s.rooms.Remove(snapshot.RoomID)
		expired++
		log.Printf("room %s: pending challenge expired", snapshot.RoomID)
		s.broadcast(snapshot, Event{Type: EventChallengeDeclined, Payload: DeclinedPayload{
			ChallengeID:  snapshot.RoomID,
			DeclinerID:   SystemDeclinerID,
			DeclinerName: "Challenge expired",
		}})
	}
	return expired
}

// RunJanitor expires pending rooms every interval until ctx is done.
func (s *ChallengeService) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.opts.PendingTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExpirePending(ctx)
		}
	}
}

// Wait blocks until background result writes have finished.
func (s *ChallengeService) Wait() {
	s.background.Wait()
}

func (s *ChallengeService) send(userID string, evt Event) {
	conn, ok := s.presence.Resolve(userID)
	if !ok {
		return
	}
	if err := conn.Send(evt); err != nil {
		log.Printf("send %s to user %s: %v", evt.Type, userID, err)
	}
}

func (s *ChallengeService) broadcast(room domain.ChallengeRoom, evt Event) {
	s.send(room.Challenger.UserID, evt)
	s.send(room.Challenged.UserID, evt)
}

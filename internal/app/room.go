package app

import (
	"sync"
	"time"

	"challenge-service/internal/domain"
)

// Room is the sole mutator of one challenge. Every transition goes through its
// methods under mu; callers only ever see copies of the state.
type Room struct {
	mu         sync.Mutex
	now        func() time.Time
	state      domain.ChallengeRoom
	generating bool
	closed     bool
}

// NewRoom allocates a pending room with zeroed scores for both participants.
func NewRoom(id string, challenger, challenged domain.Participant, course domain.CourseRef) *Room {
	return NewRoomWithClock(id, challenger, challenged, course, time.Now)
}

// NewRoomWithClock allows deterministic timestamps in tests.
func NewRoomWithClock(id string, challenger, challenged domain.Participant, course domain.CourseRef, now func() time.Time) *Room {
	return &Room{
		now: now,
		state: domain.ChallengeRoom{
			RoomID:     id,
			Challenger: challenger,
			Challenged: challenged,
			Course:     course,
			Questions:  []domain.Question{},
			UserScores: map[string]domain.UserScore{
				challenger.UserID: {Answers: []domain.AnswerRecord{}},
				challenged.UserID: {Answers: []domain.AnswerRecord{}},
			},
			Status:    domain.StatusPending,
			CreatedAt: now(),
		},
	}
}

// ID returns the room identifier.
func (r *Room) ID() string {
	return r.state.RoomID
}

// Snapshot returns a deep copy of the room state.
func (r *Room) Snapshot() domain.ChallengeRoom {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// IsLiveFor reports whether the room is pending or active with userID as a participant.
func (r *Room) IsLiveFor(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.state.IsParticipant(userID) {
		return false
	}
	return r.state.Status == domain.StatusPending || r.state.Status == domain.StatusActive
}

// beginAccept validates an accept and reports whether questions still need generating.
// When it returns true the caller owns the generation and must finish with
// completeAccept or abortGeneration.
func (r *Room) beginAccept(userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, domain.ErrRoomNotFound
	}
	if r.state.Challenged.UserID != userID {
		return false, domain.ErrNotAuthorized
	}
	if r.state.Status != domain.StatusPending {
		return false, domain.ErrRoomNotPending
	}
	if r.generating {
		return false, domain.ErrGenerationInProgress
	}
	if len(r.state.Questions) > 0 {
		return false, nil
	}
	r.generating = true
	return true, nil
}

func (r *Room) abortGeneration() {
	r.mu.Lock()
	r.generating = false
	r.mu.Unlock()
}

// completeAccept stores generated questions (if the room has none yet) and activates the room.
// The question set is all-or-nothing.
func (r *Room) completeAccept(questions []domain.Question) (domain.ChallengeRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generating = false
	if r.closed {
		return domain.ChallengeRoom{}, domain.ErrRoomNotFound
	}
	if r.state.Status != domain.StatusPending {
		return domain.ChallengeRoom{}, domain.ErrRoomNotPending
	}
	if len(r.state.Questions) == 0 {
		if len(questions) == 0 {
			return domain.ChallengeRoom{}, domain.ErrGenerationFailed
		}
		r.state.Questions = append([]domain.Question(nil), questions...)
	}
	r.state.CurrentQuestionIndex = 0
	r.state.Status = domain.StatusActive
	return r.snapshotLocked(), nil
}

// roundAt returns the question for index if the room is still active on that round.
func (r *Room) roundAt(index int) (domain.Question, domain.ChallengeRoom, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.state.Status != domain.StatusActive || r.state.CurrentQuestionIndex != index {
		return domain.Question{}, domain.ChallengeRoom{}, false
	}
	if index >= len(r.state.Questions) {
		return domain.Question{}, domain.ChallengeRoom{}, false
	}
	return r.state.Questions[index], r.snapshotLocked(), true
}

// answerOutcome reports what a recorded answer did to the round.
type answerOutcome struct {
	Record       domain.AnswerRecord
	TotalScore   int
	Question     domain.Question
	BothAnswered bool
	NextIndex    int
	Finished     bool
}

func (r *Room) submit(userID, questionID, answer string, timeSpent float64) (answerOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return answerOutcome{}, domain.ErrRoomNotFound
	}
	if !r.state.IsParticipant(userID) {
		return answerOutcome{}, domain.ErrNotAuthorized
	}
	if r.state.Status != domain.StatusActive || r.state.CurrentQuestionIndex >= len(r.state.Questions) {
		return answerOutcome{}, domain.ErrRoomNotActive
	}
	question := r.state.Questions[r.state.CurrentQuestionIndex]
	if question.ID != questionID {
		return answerOutcome{}, domain.ErrStaleQuestion
	}
	if r.state.UserScores[userID].HasAnswered(questionID) {
		return answerOutcome{}, domain.ErrDuplicateAnswer
	}
	if timeSpent < 0 {
		timeSpent = 0
	}

	record := r.recordLocked(userID, question, answer, timeSpent)
	outcome := r.advanceLocked(question)
	outcome.Record = record
	outcome.TotalScore = r.state.UserScores[userID].Score
	return outcome, nil
}

// autoAnswer records an empty answer for every participant still missing one on round index.
func (r *Room) autoAnswer(index int, timeSpent float64) (answerOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.state.Status != domain.StatusActive || r.state.CurrentQuestionIndex != index {
		return answerOutcome{}, false
	}
	if index >= len(r.state.Questions) {
		return answerOutcome{}, false
	}
	question := r.state.Questions[index]
	for _, p := range []domain.Participant{r.state.Challenger, r.state.Challenged} {
		if !r.state.UserScores[p.UserID].HasAnswered(question.ID) {
			r.recordLocked(p.UserID, question, "", timeSpent)
		}
	}
	return r.advanceLocked(question), true
}

func (r *Room) recordLocked(userID string, question domain.Question, answer string, timeSpent float64) domain.AnswerRecord {
	correct := answer != "" && answer == question.CorrectAnswer
	points := 0
	if correct {
		points = domain.PointsPerCorrect
	}
	record := domain.AnswerRecord{
		QuestionID:   question.ID,
		Answer:       answer,
		Correct:      correct,
		TimeSpent:    timeSpent,
		PointsEarned: points,
	}
	score := r.state.UserScores[userID]
	score.Score += points
	score.TimeSpent += timeSpent
	score.Answers = append(score.Answers, record)
	r.state.UserScores[userID] = score
	return record
}

// advanceLocked moves the cursor once both fixed participants answered question.
// Reaching the end of the question set completes the room.
func (r *Room) advanceLocked(question domain.Question) answerOutcome {
	outcome := answerOutcome{Question: question, NextIndex: r.state.CurrentQuestionIndex}
	if !r.state.UserScores[r.state.Challenger.UserID].HasAnswered(question.ID) ||
		!r.state.UserScores[r.state.Challenged.UserID].HasAnswered(question.ID) {
		return outcome
	}
	outcome.BothAnswered = true
	r.state.CurrentQuestionIndex++
	outcome.NextIndex = r.state.CurrentQuestionIndex
	if r.state.CurrentQuestionIndex >= len(r.state.Questions) {
		r.state.Status = domain.StatusCompleted
		outcome.Finished = true
	}
	return outcome
}

// decline discards a pending room on behalf of one of its participants.
func (r *Room) decline(userID string) (domain.ChallengeRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ChallengeRoom{}, domain.ErrRoomNotFound
	}
	if !r.state.IsParticipant(userID) {
		return domain.ChallengeRoom{}, domain.ErrNotAuthorized
	}
	if r.state.Status != domain.StatusPending {
		return domain.ChallengeRoom{}, domain.ErrRoomNotPending
	}
	r.closed = true
	return r.snapshotLocked(), nil
}

// abandon closes a pending or active room administratively, without scoring.
func (r *Room) abandon(userID string) (domain.ChallengeRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ChallengeRoom{}, domain.ErrRoomNotFound
	}
	if !r.state.IsParticipant(userID) {
		return domain.ChallengeRoom{}, domain.ErrNotAuthorized
	}
	if r.state.Status == domain.StatusCompleted {
		return domain.ChallengeRoom{}, domain.ErrRoomNotActive
	}
	r.state.Status = domain.StatusCompleted
	r.closed = true
	return r.snapshotLocked(), nil
}

// expire closes a room still pending at cutoff.
func (r *Room) expire(cutoff time.Time) (domain.ChallengeRoom, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.state.Status != domain.StatusPending || r.generating || r.state.CreatedAt.After(cutoff) {
		return domain.ChallengeRoom{}, false
	}
	r.closed = true
	return r.snapshotLocked(), true
}

func (r *Room) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Room) snapshotLocked() domain.ChallengeRoom {
	out := r.state
	out.Questions = make([]domain.Question, len(r.state.Questions))
	for i, q := range r.state.Questions {
		q.Options = append([]string(nil), q.Options...)
		out.Questions[i] = q
	}
	out.UserScores = make(map[string]domain.UserScore, len(r.state.UserScores))
	for userID, score := range r.state.UserScores {
		score.Answers = append([]domain.AnswerRecord{}, score.Answers...)
		out.UserScores[userID] = score
	}
	return out
}

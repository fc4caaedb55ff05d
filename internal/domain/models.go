package domain

import "time"

// RoomStatus is the lifecycle state of a challenge room.
type RoomStatus string

const (
	StatusPending   RoomStatus = "pending"
	StatusActive    RoomStatus = "active"
	StatusCompleted RoomStatus = "completed"
)

const (
	// PointsPerCorrect is awarded for an exact match against the correct option.
	PointsPerCorrect = 10
	// DefaultQuestionCount is the number of questions generated per challenge.
	DefaultQuestionCount = 5
	// OptionCount is the number of options every question carries.
	OptionCount = 4
)

// User is read from the identity source for display purposes.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DisplayName joins first and last name, falling back to the id.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.ID
}

// Participant is one side of a challenge.
type Participant struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// CourseRef points at the content used to generate questions.
type CourseRef struct {
	CourseID   string `json:"courseId"`
	CourseName string `json:"courseName"`
}

// Lesson is one unit of course content.
type Lesson struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Points  []string `json:"points"`
}

// Course is the read-only content returned by the content source.
type Course struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Lessons []Lesson `json:"lessons"`
}

// Question is a generated multiple-choice question.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Topic         string   `json:"topic,omitempty"`
}

// PublicQuestion is what clients see before answering.
type PublicQuestion struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Topic   string   `json:"topic,omitempty"`
}

// Public strips the correct answer.
func (q Question) Public() PublicQuestion {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return PublicQuestion{ID: q.ID, Text: q.Text, Options: options, Topic: q.Topic}
}

// AnswerRecord is one submitted answer.
type AnswerRecord struct {
	QuestionID   string  `json:"questionId"`
	Answer       string  `json:"answer"`
	Correct      bool    `json:"correct"`
	TimeSpent    float64 `json:"timeSpent"`
	PointsEarned int     `json:"pointsEarned"`
}

// UserScore accumulates a participant's progress in a room.
type UserScore struct {
	Score     int            `json:"score"`
	TimeSpent float64        `json:"timeSpent"`
	Answers   []AnswerRecord `json:"answers"`
}

// CorrectCount counts correct answers.
func (s UserScore) CorrectCount() int {
	n := 0
	for _, a := range s.Answers {
		if a.Correct {
			n++
		}
	}
	return n
}

// HasAnswered reports whether an answer for questionID is recorded.
func (s UserScore) HasAnswered(questionID string) bool {
	for _, a := range s.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// ChallengeRoom is the state of one head-to-head challenge.
type ChallengeRoom struct {
	RoomID               string               `json:"roomId"`
	Challenger           Participant          `json:"challenger"`
	Challenged           Participant          `json:"challenged"`
	Course               CourseRef            `json:"course"`
	Questions            []Question           `json:"questions"`
	CurrentQuestionIndex int                  `json:"currentQuestionIndex"`
	UserScores           map[string]UserScore `json:"userScores"`
	Status               RoomStatus           `json:"status"`
	CreatedAt            time.Time            `json:"createdAt"`
}

// IsParticipant reports whether userID is the challenger or the challenged.
func (r ChallengeRoom) IsParticipant(userID string) bool {
	return r.Challenger.UserID == userID || r.Challenged.UserID == userID
}

// Opponent returns the other participant.
func (r ChallengeRoom) Opponent(userID string) Participant {
	if r.Challenger.UserID == userID {
		return r.Challenged
	}
	return r.Challenger
}

// ParticipantByID returns the participant with userID.
func (r ChallengeRoom) ParticipantByID(userID string) (Participant, bool) {
	switch userID {
	case r.Challenger.UserID:
		return r.Challenger, true
	case r.Challenged.UserID:
		return r.Challenged, true
	}
	return Participant{}, false
}

// ChallengeResult is the durable outcome written for one participant.
type ChallengeResult struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	CourseID       string    `json:"courseId"`
	Score          float64   `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	CorrectAnswers int       `json:"correctAnswers"`
	TimeSpent      float64   `json:"timeSpent"`
	Points         int       `json:"points"`
	IsChallenge    bool      `json:"isChallenge"`
	ChallengeID    string    `json:"challengeId"`
	OpponentID     string    `json:"opponentId"`
	Won            bool      `json:"won"`
	CreatedAt      time.Time `json:"createdAt"`
}

// GenerationRequest is the input of the question generator.
type GenerationRequest struct {
	CourseTitle string
	Lessons     []Lesson
	Count       int
}

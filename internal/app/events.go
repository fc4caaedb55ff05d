package app

import (
	"time"

	"challenge-service/internal/domain"
)

// Server-to-client event names.
const (
	EventIdentified           = "identified"
	EventChallengeReceived    = "challenge_received"
	EventChallengeRoomCreated = "challenge_room_created"
	EventChallengeAccepted    = "challenge_accepted"
	EventChallengeStarted     = "challenge_started"
	EventNewQuestion          = "new_question"
	EventAnswerResult         = "answer_result"
	EventBothAnswered         = "both_answered"
	EventChallengeResults     = "challenge_results"
	EventChallengeDeclined    = "challenge_declined"
	EventOpponentLeft         = "opponent_left"
	EventChallengeError       = "challenge_error"
	EventAnswerError          = "answer_error"
	EventChallengeRoomError   = "challenge_room_error"
	EventRoomStatusResponse   = "room_status_response"
	EventRoomData             = "room_data"
)

// SystemDeclinerID identifies declines issued by the server itself (pending expiry).
const SystemDeclinerID = "system"

// Event is the envelope delivered over a connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// RoomSummary describes a room without questions or answers.
type RoomSummary struct {
	RoomID         string             `json:"roomId"`
	Challenger     domain.Participant `json:"challenger"`
	Challenged     domain.Participant `json:"challenged"`
	Course         domain.CourseRef   `json:"course"`
	Status         domain.RoomStatus  `json:"status"`
	TotalQuestions int                `json:"totalQuestions"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// Summarize builds the RoomSummary of a room snapshot.
func Summarize(room domain.ChallengeRoom) RoomSummary {
	return RoomSummary{
		RoomID:         room.RoomID,
		Challenger:     room.Challenger,
		Challenged:     room.Challenged,
		Course:         room.Course,
		Status:         room.Status,
		TotalQuestions: len(room.Questions),
		CreatedAt:      room.CreatedAt,
	}
}

type RoomIDPayload struct {
	RoomID string `json:"roomId"`
}

type NewQuestionPayload struct {
	RoomID      string                `json:"roomId"`
	Question    domain.PublicQuestion `json:"question"`
	TimeLimit   int                   `json:"timeLimit"`
	RoundNumber int                   `json:"roundNumber"`
	TotalRounds int                   `json:"totalRounds"`
	CourseName  string                `json:"courseName"`
}

type AnswerResultPayload struct {
	RoomID       string `json:"roomId"`
	QuestionID   string `json:"questionId"`
	Correct      bool   `json:"correct"`
	PointsEarned int    `json:"pointsEarned"`
	TotalScore   int    `json:"totalScore"`
}

// BothAnsweredPayload is sent once the round is closed, so the correct answer can be revealed.
type BothAnsweredPayload struct {
	RoomID        string `json:"roomId"`
	QuestionID    string `json:"questionId"`
	CorrectAnswer string `json:"correctAnswer"`
}

type ParticipantResult struct {
	UserID         string  `json:"userId"`
	DisplayName    string  `json:"displayName"`
	Score          int     `json:"score"`
	TimeSpent      float64 `json:"timeSpent"`
	CorrectAnswers int     `json:"correctAnswers"`
}

type ResultsPayload struct {
	RoomID         string              `json:"roomId"`
	Results        []ParticipantResult `json:"results"`
	WinnerID       string              `json:"winnerId"`
	WinnerName     string              `json:"winnerName"`
	TotalQuestions int                 `json:"totalQuestions"`
}

type DeclinedPayload struct {
	ChallengeID  string `json:"challengeId"`
	DeclinerID   string `json:"declinerId"`
	DeclinerName string `json:"declinerName"`
}

type OpponentLeftPayload struct {
	RoomID        string `json:"roomId"`
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
	CustomMessage string `json:"customMessage"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type RoomStatusPayload struct {
	IsInRoom bool              `json:"isInRoom"`
	RoomID   string            `json:"roomId,omitempty"`
	Status   domain.RoomStatus `json:"status,omitempty"`
}

type ScoreView struct {
	Score     int     `json:"score"`
	TimeSpent float64 `json:"timeSpent"`
	Answered  int     `json:"answered"`
}

// RoomDataPayload is the participant-facing view of a room.
type RoomDataPayload struct {
	RoomSummary
	RoundNumber int                  `json:"roundNumber"`
	Scores      map[string]ScoreView `json:"scores"`
}

// RoomData builds the participant view of a room snapshot.
func RoomData(room domain.ChallengeRoom) RoomDataPayload {
	scores := make(map[string]ScoreView, len(room.UserScores))
	for userID, s := range room.UserScores {
		scores[userID] = ScoreView{Score: s.Score, TimeSpent: s.TimeSpent, Answered: len(s.Answers)}
	}
	round := 0
	if room.Status == domain.StatusActive {
		round = room.CurrentQuestionIndex + 1
	}
	return RoomDataPayload{
		RoomSummary: Summarize(room),
		RoundNumber: round,
		Scores:      scores,
	}
}

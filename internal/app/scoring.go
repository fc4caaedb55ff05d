package app

import (
	"time"

	"challenge-service/internal/domain"
)

// DetermineWinner picks exactly one winner: higher score wins, then lower total time.
// A full tie on both goes to the challenged participant.
func DetermineWinner(room domain.ChallengeRoom) domain.Participant {
	a := room.UserScores[room.Challenger.UserID]
	b := room.UserScores[room.Challenged.UserID]
	if a.Score > b.Score || (a.Score == b.Score && a.TimeSpent < b.TimeSpent) {
		return room.Challenger
	}
	return room.Challenged
}

// PercentageScore converts raw points into a 0-100 percentage of the maximum.
func PercentageScore(points, totalQuestions int) float64 {
	if totalQuestions <= 0 {
		return 0
	}
	return float64(points) / float64(totalQuestions*domain.PointsPerCorrect) * 100
}

// ResultsFor builds the broadcast summary of a completed room.
func ResultsFor(room domain.ChallengeRoom, winner domain.Participant) ResultsPayload {
	results := make([]ParticipantResult, 0, 2)
	for _, p := range []domain.Participant{room.Challenger, room.Challenged} {
		score := room.UserScores[p.UserID]
		results = append(results, ParticipantResult{
			UserID:         p.UserID,
			DisplayName:    p.DisplayName,
			Score:          score.Score,
			TimeSpent:      score.TimeSpent,
			CorrectAnswers: score.CorrectCount(),
		})
	}
	return ResultsPayload{
		RoomID:         room.RoomID,
		Results:        results,
		WinnerID:       winner.UserID,
		WinnerName:     winner.DisplayName,
		TotalQuestions: len(room.Questions),
	}
}

// BuildResults produces one durable record per participant.
func BuildResults(room domain.ChallengeRoom, winner domain.Participant, at time.Time, newID func() string) []domain.ChallengeResult {
	total := len(room.Questions)
	out := make([]domain.ChallengeResult, 0, 2)
	for _, p := range []domain.Participant{room.Challenger, room.Challenged} {
		score := room.UserScores[p.UserID]
		out = append(out, domain.ChallengeResult{
			ID:             newID(),
			UserID:         p.UserID,
			CourseID:       room.Course.CourseID,
			Score:          PercentageScore(score.Score, total),
			TotalQuestions: total,
			CorrectAnswers: score.CorrectCount(),
			TimeSpent:      score.TimeSpent,
			Points:         score.Score,
			IsChallenge:    true,
			ChallengeID:    room.RoomID,
			OpponentID:     room.Opponent(p.UserID).UserID,
			Won:            winner.UserID == p.UserID,
			CreatedAt:      at,
		})
	}
	return out
}

package app_test

import (
	"testing"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
)

func scoredRoom(aliceCorrect, bobCorrect int, aliceTime, bobTime float64) domain.ChallengeRoom {
	return domain.ChallengeRoom{
		RoomID:     "room-1",
		Challenger: domain.Participant{UserID: "alice", DisplayName: "Alice"},
		Challenged: domain.Participant{UserID: "bob", DisplayName: "Bob"},
		Course:     domain.CourseRef{CourseID: "course-x", CourseName: "X"},
		Questions:  make([]domain.Question, 10),
		UserScores: map[string]domain.UserScore{
			"alice": {Score: aliceCorrect * domain.PointsPerCorrect, TimeSpent: aliceTime},
			"bob":   {Score: bobCorrect * domain.PointsPerCorrect, TimeSpent: bobTime},
		},
		Status: domain.StatusCompleted,
	}
}

func TestDetermineWinner(t *testing.T) {
	cases := []struct {
		name string
		room domain.ChallengeRoom
		want string
	}{
		{"higher score wins regardless of time", scoredRoom(7, 5, 90, 10), "alice"},
		{"higher score wins for challenged", scoredRoom(5, 7, 10, 90), "bob"},
		{"tie goes to faster", scoredRoom(5, 5, 40, 55), "alice"},
		{"tie goes to faster challenged", scoredRoom(5, 5, 55, 40), "bob"},
		{"full tie goes to challenged", scoredRoom(5, 5, 40, 40), "bob"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := app.DetermineWinner(tc.room).UserID; got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestBuildResults(t *testing.T) {
	room := scoredRoom(7, 5, 40, 55)
	winner := app.DetermineWinner(room)
	at := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	n := 0
	results := app.BuildResults(room, winner, at, func() string { n++; return "id" })

	if len(results) != 2 || n != 2 {
		t.Fatalf("expected one record per participant, got %d", len(results))
	}
	alice, bob := results[0], results[1]
	if alice.Score != 70 || alice.Points != 70 || !alice.Won || alice.OpponentID != "bob" {
		t.Fatalf("unexpected challenger result: %+v", alice)
	}
	if bob.Score != 50 || bob.Won || bob.OpponentID != "alice" || bob.TotalQuestions != 10 {
		t.Fatalf("unexpected challenged result: %+v", bob)
	}
	if !alice.IsChallenge || alice.ChallengeID != "room-1" || !alice.CreatedAt.Equal(at) {
		t.Fatalf("missing challenge metadata: %+v", alice)
	}
}

func TestPercentageScore(t *testing.T) {
	if got := app.PercentageScore(30, 5); got != 60 {
		t.Fatalf("expected 60, got %v", got)
	}
	if got := app.PercentageScore(10, 0); got != 0 {
		t.Fatalf("expected 0 for empty room, got %v", got)
	}
}

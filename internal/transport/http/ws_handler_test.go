package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"challenge-service/internal/generator"
	"challenge-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.ChallengeService, *memory.ResultStore) {
	t.Helper()
	results := memory.NewResultStore()
	opts := app.DefaultOptions()
	opts.RoundDelay = 0
	opts.GraceWindow = 0
	service := app.NewChallengeService(app.Deps{
		Rooms:     memory.NewRoomStore(),
		Presence:  memory.NewPresence(),
		Courses:   memory.NewCourseRepository(memory.NewStaticCourseLoader(sampleCourses()), time.Minute),
		Users:     memory.NewStaticUserSource(sampleUsers()...),
		Generator: generator.NewFallbackGenerator(),
		Results:   results,
	}, opts)

	server := httptest.NewServer(NewRouter(service, NewWSHandler(service)))
	t.Cleanup(server.Close)
	return server, service, results
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil skips events until one of type expect arrives.
func readUntil(t *testing.T, conn *websocket.Conn, expect string) json.RawMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg received
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", expect, err)
		}
		if msg.Type == expect {
			return msg.Payload
		}
	}
	t.Fatalf("never received %s", expect)
	return nil
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func TestWebSocketChallengeFlow(t *testing.T) {
	server, _, _ := newTestServer(t)

	alice := dial(t, server, "?userId=alice")
	readUntil(t, alice, app.EventIdentified)
	bob := dial(t, server, "")
	send(t, bob, "identify", map[string]any{"userId": "bob"})
	readUntil(t, bob, app.EventIdentified)

	send(t, alice, "create_challenge", map[string]any{"challengerId": "alice", "challengedId": "bob", "courseId": "course-x"})
	var created app.RoomIDPayload
	if err := json.Unmarshal(readUntil(t, alice, app.EventChallengeRoomCreated), &created); err != nil || created.RoomID == "" {
		t.Fatalf("expected room id, got %+v (%v)", created, err)
	}

	var summary app.RoomSummary
	json.Unmarshal(readUntil(t, bob, app.EventChallengeReceived), &summary)
	if summary.RoomID != created.RoomID || summary.Challenger.DisplayName != "Alice Smith" {
		t.Fatalf("unexpected challenge_received: %+v", summary)
	}

	send(t, bob, "accept_challenge", map[string]any{"challengeId": created.RoomID, "userId": "bob"})
	json.Unmarshal(readUntil(t, alice, app.EventChallengeStarted), &summary)
	if summary.TotalQuestions != domain.DefaultQuestionCount {
		t.Fatalf("expected %d questions, got %d", domain.DefaultQuestionCount, summary.TotalQuestions)
	}

	var round app.NewQuestionPayload
	json.Unmarshal(readUntil(t, alice, app.EventNewQuestion), &round)
	if round.RoundNumber != 1 || len(round.Question.Options) != domain.OptionCount {
		t.Fatalf("unexpected first round: %+v", round)
	}
	if raw := readUntil(t, bob, app.EventNewQuestion); len(raw) == 0 {
		t.Fatalf("bob expected the first round")
	}

	send(t, alice, "submit_answer", map[string]any{"roomId": created.RoomID, "userId": "alice", "questionId": "q9", "answer": "x", "timeSpent": 2})
	var failure app.ErrorPayload
	json.Unmarshal(readUntil(t, alice, app.EventAnswerError), &failure)
	if failure.Message != domain.ErrStaleQuestion.Error() {
		t.Fatalf("unexpected answer_error: %+v", failure)
	}

	send(t, alice, "submit_answer", map[string]any{"roomId": created.RoomID, "userId": "alice", "questionId": round.Question.ID, "answer": round.Question.Options[0], "timeSpent": 2.5})
	var result app.AnswerResultPayload
	json.Unmarshal(readUntil(t, alice, app.EventAnswerResult), &result)
	if result.QuestionID != round.Question.ID {
		t.Fatalf("unexpected answer_result: %+v", result)
	}

	send(t, bob, "check_room_status", map[string]any{"userId": "bob"})
	var status app.RoomStatusPayload
	json.Unmarshal(readUntil(t, bob, app.EventRoomStatusResponse), &status)
	if !status.IsInRoom || status.RoomID != created.RoomID || status.Status != domain.StatusActive {
		t.Fatalf("unexpected room status: %+v", status)
	}

	send(t, bob, "leave_room", map[string]any{"roomId": created.RoomID, "userId": "bob", "customMessage": "brb"})
	var left app.OpponentLeftPayload
	json.Unmarshal(readUntil(t, alice, app.EventOpponentLeft), &left)
	if left.UserID != "bob" || left.CustomMessage != "brb" {
		t.Fatalf("unexpected opponent_left: %+v", left)
	}
}

func TestWebSocketErrorsGoToRequester(t *testing.T) {
	server, service, _ := newTestServer(t)
	alice := dial(t, server, "?userId=alice")
	readUntil(t, alice, app.EventIdentified)

	send(t, alice, "create_challenge", map[string]any{"challengerId": "alice", "challengedId": "alice", "courseId": "course-x"})
	var failure app.ErrorPayload
	json.Unmarshal(readUntil(t, alice, app.EventChallengeError), &failure)
	if failure.Message != domain.ErrSelfChallenge.Error() {
		t.Fatalf("unexpected challenge_error: %+v", failure)
	}

	send(t, alice, "join_challenge", map[string]any{"roomId": "missing", "userId": "alice"})
	json.Unmarshal(readUntil(t, alice, app.EventChallengeRoomError), &failure)
	if failure.Message != domain.ErrRoomNotFound.Error() {
		t.Fatalf("unexpected challenge_room_error: %+v", failure)
	}

	send(t, alice, "create_challenge", "not an object")
	json.Unmarshal(readUntil(t, alice, app.EventChallengeError), &failure)
	if failure.Message != domain.ErrInvalidPayload.Error() {
		t.Fatalf("expected invalid payload, got %+v", failure)
	}

	send(t, alice, "dance", nil)
	readUntil(t, alice, app.EventChallengeError)

	if service.CheckRoomStatus(context.Background(), "alice").IsInRoom {
		t.Fatalf("no room should exist")
	}
}

func TestWebSocketRejectsActingForAnotherUser(t *testing.T) {
	server, service, _ := newTestServer(t)

	alice := dial(t, server, "?userId=alice")
	readUntil(t, alice, app.EventIdentified)
	bob := dial(t, server, "?userId=bob")
	readUntil(t, bob, app.EventIdentified)

	send(t, alice, "create_challenge", map[string]any{"challengerId": "alice", "challengedId": "bob", "courseId": "course-x"})
	var created app.RoomIDPayload
	json.Unmarshal(readUntil(t, alice, app.EventChallengeRoomCreated), &created)

	send(t, alice, "accept_challenge", map[string]any{"challengeId": created.RoomID, "userId": "bob"})
	var failure app.ErrorPayload
	json.Unmarshal(readUntil(t, alice, app.EventChallengeError), &failure)
	if failure.Message != domain.ErrNotAuthorized.Error() {
		t.Fatalf("accept on behalf of bob should be rejected, got %+v", failure)
	}

	send(t, bob, "accept_challenge", map[string]any{"challengeId": created.RoomID, "userId": "bob"})
	var round app.NewQuestionPayload
	json.Unmarshal(readUntil(t, alice, app.EventNewQuestion), &round)
	readUntil(t, bob, app.EventNewQuestion)

	send(t, alice, "submit_answer", map[string]any{"roomId": created.RoomID, "userId": "bob", "questionId": round.Question.ID, "answer": round.Question.Options[0], "timeSpent": 1})
	json.Unmarshal(readUntil(t, alice, app.EventAnswerError), &failure)
	if failure.Message != domain.ErrNotAuthorized.Error() {
		t.Fatalf("submit on behalf of bob should be rejected, got %+v", failure)
	}

	send(t, alice, "leave_room", map[string]any{"roomId": created.RoomID, "userId": "bob"})
	json.Unmarshal(readUntil(t, alice, app.EventChallengeRoomError), &failure)
	if failure.Message != domain.ErrNotAuthorized.Error() {
		t.Fatalf("leave on behalf of bob should be rejected, got %+v", failure)
	}

	view, err := service.GetRoom(context.Background(), created.RoomID)
	if err != nil {
		t.Fatalf("room should still exist: %v", err)
	}
	if view.Status != domain.StatusActive || view.Scores["bob"].Answered != 0 {
		t.Fatalf("bob's state should be untouched: %+v", view)
	}
}

func TestRESTRoomAndHistory(t *testing.T) {
	server, service, results := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(server.URL + "/api/challenges/rooms/unknown")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	room, err := service.CreateChallenge(context.Background(), "alice", "bob", "course-x")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp, err = http.Get(server.URL + "/api/challenges/rooms/" + room.RoomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	var view app.RoomDataPayload
	json.NewDecoder(resp.Body).Decode(&view)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || view.RoomID != room.RoomID || view.Status != domain.StatusPending {
		t.Fatalf("unexpected room view %d: %+v", resp.StatusCode, view)
	}

	at := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	results.RecordResult(context.Background(), domain.ChallengeResult{ID: "r1", UserID: "alice", Points: 10, CreatedAt: at})
	results.RecordResult(context.Background(), domain.ChallengeResult{ID: "r2", UserID: "alice", Points: 20, CreatedAt: at.Add(time.Hour)})

	resp, err = http.Get(server.URL + "/api/challenges/history/alice?limit=1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var history []domain.ChallengeResult
	json.NewDecoder(resp.Body).Decode(&history)
	resp.Body.Close()
	if len(history) != 1 || history[0].ID != "r2" {
		t.Fatalf("expected newest result only, got %+v", history)
	}

	resp, err = http.Get(server.URL + "/api/challenges/history/alice?limit=abc")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
}

func sampleUsers() []domain.User {
	return []domain.User{
		{ID: "alice", FirstName: "Alice", LastName: "Smith"},
		{ID: "bob", FirstName: "Bob", LastName: "Jones"},
	}
}

func sampleCourses() map[string]domain.Course {
	return map[string]domain.Course{
		"course-x": {
			ID:    "course-x",
			Title: "X",
			Lessons: []domain.Lesson{
				{Title: "Basics", Content: "Variables hold values.", Points: []string{"variables hold values", "constants never change"}},
				{Title: "Control flow", Content: "Loops repeat work.", Points: []string{"loops repeat work", "if branches on a condition"}},
			},
		},
	}
}

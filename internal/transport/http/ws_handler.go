package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"challenge-service/internal/app"
	"challenge-service/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client-to-server message types.
const (
	msgIdentify         = "identify"
	msgCreateChallenge  = "create_challenge"
	msgAcceptChallenge  = "accept_challenge"
	msgDeclineChallenge = "decline_challenge"
	msgJoinChallenge    = "join_challenge"
	msgSubmitAnswer     = "submit_answer"
	msgLeaveRoom        = "leave_room"
	msgCheckRoomStatus  = "check_room_status"
)

const sendBuffer = 64

var (
	errClientClosed = errors.New("connection closed")
	errSendBlocked  = errors.New("send buffer full")
)

type WSHandler struct {
	service  *app.ChallengeService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ChallengeService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type identifyPayload struct {
	UserID string `json:"userId"`
}

type createPayload struct {
	ChallengerID string `json:"challengerId"`
	ChallengedID string `json:"challengedId"`
	CourseID     string `json:"courseId"`
}

type challengePayload struct {
	ChallengeID string `json:"challengeId"`
	UserID      string `json:"userId"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type submitPayload struct {
	RoomID     string  `json:"roomId"`
	UserID     string  `json:"userId"`
	QuestionID string  `json:"questionId"`
	Answer     string  `json:"answer"`
	TimeSpent  float64 `json:"timeSpent"`
}

type leavePayload struct {
	RoomID        string `json:"roomId"`
	UserID        string `json:"userId"`
	CustomMessage string `json:"customMessage"`
}

// client is one websocket connection. Events are queued on send and written by a
// single writer goroutine, so the service can deliver from any goroutine.
type client struct {
	id   string
	send chan app.Event
	done chan struct{}

	mu     sync.Mutex
	userID string
}

func newClient() *client {
	return &client{
		id:   uuid.NewString(),
		send: make(chan app.Event, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *client) ID() string { return c.id }

func (c *client) Send(evt app.Event) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- evt:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendBlocked
	}
}

func (c *client) identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *client) setIdentity(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// ServeWS upgrades HTTP requests to websockets and dispatches protocol messages to the challenge engine.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := newClient()
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			select {
			case evt := <-c.send:
				if err := conn.WriteJSON(evt); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-c.done:
				return
			}
		}
	}()

	if userID := r.URL.Query().Get("userId"); userID != "" {
		h.identify(ctx, c, userID)
	}

	var inflight sync.WaitGroup
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if inbound.Type == msgAcceptChallenge {
			// generation can take a while; keep reading so a leave is still processed
			inflight.Add(1)
			go func(payload json.RawMessage) {
				defer inflight.Done()
				h.handle(ctx, c, msgAcceptChallenge, payload)
			}(inbound.Payload)
			continue
		}
		h.handle(ctx, c, inbound.Type, inbound.Payload)
	}

	cancel()
	inflight.Wait()
	h.service.Disconnect(context.Background(), c)
	close(c.done)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, c *client, msgType string, raw json.RawMessage) {
	switch msgType {
	case msgIdentify:
		var p identifyPayload
		if !decode(c, msgType, raw, &p) {
			return
		}
		if p.UserID == "" {
			reply(c, errorEvent(msgType, domain.ErrInvalidPayload))
			return
		}
		h.identify(ctx, c, p.UserID)

	case msgCreateChallenge:
		var p createPayload
		if !decode(c, msgType, raw, &p) {
			return
		}
		if !actsAs(c, msgType, p.ChallengerID) {
			return
		}
		h.bind(ctx, c, p.ChallengerID)
		room, err := h.service.CreateChallenge(ctx, p.ChallengerID, p.ChallengedID, p.CourseID)
		if err != nil {
			reply(c, errorEvent(msgType, err))
			return
		}
		reply(c, app.Event{Type: app.EventChallengeRoomCreated, Payload: app.RoomIDPayload{RoomID: room.RoomID}})

	case msgAcceptChallenge:
		var p challengePayload
		if !decode(c, msgType, raw, &p) {
			return
		}
		if !actsAs(c, msgType, p.UserID) {
			return
		}
		h.bind(ctx, c, p.UserID)
		if _, err := h.service.AcceptChallenge(ctx, p.ChallengeID, p.UserID); err != nil {
			reply(c, errorEvent(msgType, err))
		}

	case msgDeclineChallenge:
		var p challengePayload
		if !decode(c, msgType, raw, &p) {
			return
		}
		if !actsAs(c, msgType, p.UserID) {
			return
		}
		if err := h.service.DeclineChallenge(ctx, p.ChallengeID, p.UserID); err != nil {
			reply(c, errorEvent(msgType, err))
		}

	case msgJoinChallenge:
		var p roomPayload
		if !decode(c, msgType, raw, &p) {
			return
		}
		if !actsAs(c, msgType, p.UserID) {
			return
		}
		data, err := h.service.JoinChallenge(ctx, p.RoomID, p.UserID, c)
		if err != nil {
			reply(c, errorEvent(msgType, err))
			return
		}
		c.setIdentity(p.UserID)
		reply(c, app.Event{Type: app.EventRoomData, Payload: data})

	case msgSubmitAnswer:
		var p submitPayload
		if !decode(c, msgType, raw, &p) {
			return
		}
		if !actsAs(c, msgType, p.UserID) {
			return
		}
		result, err := h.service.SubmitAnswer(ctx, p.RoomID, p.UserID, p.QuestionID, p.Answer, p.TimeSpent)
		if err != nil {
			reply(c, errorEvent(msgType, err))
			return
		}
		reply(c, app.Event{Type: app.EventAnswerResult, Payload: result})

	case msgLeaveRoom:
		var p leavePayload
		if !decode(c, msgType, raw, &p) {
			return
		}
		if !actsAs(c, msgType, p.UserID) {
			return
		}
		if err := h.service.LeaveRoom(ctx, p.RoomID, p.UserID, p.CustomMessage); err != nil {
			reply(c, errorEvent(msgType, err))
		}

	case msgCheckRoomStatus:
		var p identifyPayload
		if !decode(c, msgType, raw, &p) {
			return
		}
		if p.UserID == "" {
			p.UserID = c.identity()
		}
		reply(c, app.Event{Type: app.EventRoomStatusResponse, Payload: h.service.CheckRoomStatus(ctx, p.UserID)})

	default:
		reply(c, app.Event{Type: app.EventChallengeError, Payload: app.ErrorPayload{Message: "unsupported message type"}})
	}
}

func (h *WSHandler) identify(ctx context.Context, c *client, userID string) {
	if err := h.service.Identify(ctx, userID, c); err != nil {
		reply(c, errorEvent(msgIdentify, err))
		return
	}
	c.setIdentity(userID)
	reply(c, app.Event{Type: app.EventIdentified, Payload: identifyPayload{UserID: userID}})
}

// bind identifies an anonymous connection as the acting user so room events reach it.
func (h *WSHandler) bind(ctx context.Context, c *client, userID string) {
	if userID == "" || c.identity() != "" {
		return
	}
	if err := h.service.Identify(ctx, userID, c); err == nil {
		c.setIdentity(userID)
	}
}

// actsAs rejects a message that names a different user than the one the connection identified as.
func actsAs(c *client, msgType, userID string) bool {
	if identity := c.identity(); identity != "" && identity != userID {
		reply(c, errorEvent(msgType, domain.ErrNotAuthorized))
		return false
	}
	return true
}

func decode(c *client, msgType string, raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		reply(c, errorEvent(msgType, domain.ErrInvalidPayload))
		return false
	}
	return true
}

func reply(c *client, evt app.Event) {
	if err := c.Send(evt); err != nil {
		log.Printf("reply %s on connection %s: %v", evt.Type, c.ID(), err)
	}
}

// errorEvent picks the error event family of the message that failed.
func errorEvent(msgType string, err error) app.Event {
	eventType := app.EventChallengeError
	switch msgType {
	case msgSubmitAnswer:
		eventType = app.EventAnswerError
	case msgJoinChallenge, msgLeaveRoom, msgCheckRoomStatus:
		eventType = app.EventChallengeRoomError
	}
	return app.Event{Type: eventType, Payload: app.ErrorPayload{Message: err.Error()}}
}

package redis

import (
	"context"
	"time"

	"challenge-service/internal/app"
	"challenge-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Notes:
//   - Rooms themselves stay in the local in-memory store; their state is only
//     mutated in-process.
//   - Redis holds liveness markers (room and per-participant) with a TTL so other
//     instances and operators can see who is busy.
type RoomStore struct {
	*memory.RoomStore
	client *redis.Client
	ttl    time.Duration
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		RoomStore: memory.NewRoomStore(),
		client:    client,
		ttl:       ttl,
	}
}

func (s *RoomStore) Create(room *app.Room) (string, error) {
	id, err := s.RoomStore.Create(room)
	if err != nil {
		return "", err
	}
	snapshot := room.Snapshot()
	ctx := context.Background()
	// best-effort liveness markers
	pipe := s.client.Pipeline()
	pipe.Set(ctx, roomKey(id), string(snapshot.Status), s.ttl)
	pipe.Set(ctx, userKey(snapshot.Challenger.UserID), id, s.ttl)
	pipe.Set(ctx, userKey(snapshot.Challenged.UserID), id, s.ttl)
	_, _ = pipe.Exec(ctx)
	return id, nil
}

func (s *RoomStore) Remove(roomID string) {
	room, ok := s.RoomStore.Get(roomID)
	s.RoomStore.Remove(roomID)

	ctx := context.Background()
	keys := []string{roomKey(roomID)}
	if ok {
		snapshot := room.Snapshot()
		for _, userID := range []string{snapshot.Challenger.UserID, snapshot.Challenged.UserID} {
			// only clear the marker if it still points at this room
			if current, err := s.client.Get(ctx, userKey(userID)).Result(); err == nil && current == roomID {
				keys = append(keys, userKey(userID))
			}
		}
	}
	_ = s.client.Del(ctx, keys...).Err()
}

func roomKey(roomID string) string {
	return "challenge:room:" + roomID
}

func userKey(userID string) string {
	return "challenge:user:" + userID
}

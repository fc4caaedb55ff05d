package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"challenge-service/internal/domain"
	"challenge-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CourseRepository caches course content as JSON in Redis and falls back to a loader on cache miss.
// Courses are stored as: SET course:{courseID} {json}
type CourseRepository struct {
	client *redis.Client
	loader memory.CourseLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewCourseRepository(client *redis.Client, loader memory.CourseLoader, ttl time.Duration) *CourseRepository {
	return &CourseRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CourseRepository) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	if course, ok := r.cached(ctx, courseID); ok {
		return course, nil
	}

	result, err, _ := r.sf.Do(courseID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if course, ok := r.cached(ctx, courseID); ok {
			return course, nil
		}

		course, err := r.loader.LoadCourse(ctx, courseID)
		if err != nil {
			return domain.Course{}, err
		}
		if data, err := json.Marshal(course); err == nil {
			_ = r.client.Set(ctx, r.key(courseID), data, r.ttlWithJitter()).Err()
		}
		return course, nil
	})
	if err != nil {
		return domain.Course{}, err
	}
	return result.(domain.Course), nil
}

func (r *CourseRepository) cached(ctx context.Context, courseID string) (domain.Course, bool) {
	data, err := r.client.Get(ctx, r.key(courseID)).Bytes()
	if err != nil || len(data) == 0 {
		return domain.Course{}, false
	}
	var course domain.Course
	if err := json.Unmarshal(data, &course); err != nil {
		return domain.Course{}, false
	}
	return course, true
}

func (r *CourseRepository) key(courseID string) string {
	return "course:" + courseID
}

func (r *CourseRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

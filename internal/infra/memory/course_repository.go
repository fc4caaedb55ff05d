package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"challenge-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CourseRepository keeps loaded courses in process memory until their TTL runs out.
type CourseRepository struct {
	loader CourseLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedCourse
}

type cachedCourse struct {
	course    domain.Course
	expiresAt time.Time
}

func NewCourseRepository(loader CourseLoader, ttl time.Duration) *CourseRepository {
	return &CourseRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedCourse),
	}
}

// GetCourse serves a cached course, loading it at most once per key while concurrent callers wait.
func (r *CourseRepository) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	if course, ok := r.lookup(courseID); ok {
		return course, nil
	}

	result, err, _ := r.sf.Do(courseID, func() (interface{}, error) {
		if course, ok := r.lookup(courseID); ok {
			return course, nil
		}
		course, err := r.loader.LoadCourse(ctx, courseID)
		if err != nil {
			return domain.Course{}, err
		}
		r.mu.Lock()
		r.cache[courseID] = cachedCourse{course: course, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return course, nil
	})
	if err != nil {
		return domain.Course{}, err
	}
	return result.(domain.Course), nil
}

func (r *CourseRepository) lookup(courseID string) (domain.Course, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[courseID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Course{}, false
	}
	return entry.course, true
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

package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-live-service/internal/domain"
)

// QuestionLoader fetches question content from a backing store.
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, questionSetID int64) ([]domain.Question, error)
	LoadQuestion(ctx context.Context, questionID int64) (domain.Question, error)
}

// CachedQuestionRepository caches whole question sets with TTL to avoid
// hitting the backing store on every lookup.
type CachedQuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu   sync.RWMutex
	sets map[int64]cachedSet
}

type cachedSet struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCachedQuestionRepository(loader QuestionLoader, ttl time.Duration) *CachedQuestionRepository {
	return &CachedQuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sets:   make(map[int64]cachedSet),
	}
}

func (r *CachedQuestionRepository) QuestionByPosition(ctx context.Context, questionSetID int64, position int) (domain.Question, error) {
	questions, err := r.getSet(ctx, questionSetID)
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range questions {
		if q.Position == position {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (r *CachedQuestionRepository) QuestionByID(ctx context.Context, questionID int64) (domain.Question, error) {
	r.mu.RLock()
	now := r.clock()
	for _, entry := range r.sets {
		if !entry.expiresAt.After(now) {
			continue
		}
		for _, q := range entry.questions {
			if q.ID == questionID {
				r.mu.RUnlock()
				return q, nil
			}
		}
	}
	r.mu.RUnlock()
	return r.loader.LoadQuestion(ctx, questionID)
}

func (r *CachedQuestionRepository) CountQuestions(ctx context.Context, questionSetID int64) (int, error) {
	questions, err := r.getSet(ctx, questionSetID)
	if err != nil {
		return 0, err
	}
	return len(questions), nil
}

func (r *CachedQuestionRepository) getSet(ctx context.Context, questionSetID int64) ([]domain.Question, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.sets[questionSetID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(setKey(questionSetID), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.sets[questionSetID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.questions, nil
		}
		r.mu.RUnlock()

		questions, err := r.loader.LoadQuestionSet(ctx, questionSetID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.sets[questionSetID] = cachedSet{
			questions: questions,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *CachedQuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func setKey(questionSetID int64) string {
	return "set:" + strconv.FormatInt(questionSetID, 10)
}

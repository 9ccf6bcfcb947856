package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-live-service/internal/domain"
)

// QuestionLoader fetches question content from a backing store.
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, questionSetID int64) ([]domain.Question, error)
	LoadQuestion(ctx context.Context, questionID int64) (domain.Question, error)
}

// QuestionRepository caches whole question sets as JSON values in Redis
// and falls back to the loader on a miss. Sets are stored under
// quiz:set:{id}:questions with a jittered TTL.
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) QuestionByPosition(ctx context.Context, questionSetID int64, position int) (domain.Question, error) {
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

func (r *QuestionRepository) QuestionByID(ctx context.Context, questionID int64) (domain.Question, error) {
	key := r.questionKey(questionID)
	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err == nil {
			return q, nil
		}
	}

	q, err := r.loader.LoadQuestion(ctx, questionID)
	if err != nil {
		return domain.Question{}, err
	}
	if raw, err := json.Marshal(q); err == nil {
		_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
	}
	return q, nil
}

func (r *QuestionRepository) CountQuestions(ctx context.Context, questionSetID int64) (int, error) {
	questions, err := r.getSet(ctx, questionSetID)
	if err != nil {
		return 0, err
	}
	return len(questions), nil
}

func (r *QuestionRepository) getSet(ctx context.Context, questionSetID int64) ([]domain.Question, error) {
	key := r.setKey(questionSetID)

	if questions, ok := r.readSet(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if questions, ok := r.readSet(ctx, key); ok {
			return questions, nil
		}

		questions, err := r.loader.LoadQuestionSet(ctx, questionSetID)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("marshal question set: %w", err)
		}
		_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) readSet(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (r *QuestionRepository) setKey(questionSetID int64) string {
	return "quiz:set:" + strconv.FormatInt(questionSetID, 10) + ":questions"
}

func (r *QuestionRepository) questionKey(questionID int64) string {
	return "quiz:question:" + strconv.FormatInt(questionID, 10)
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

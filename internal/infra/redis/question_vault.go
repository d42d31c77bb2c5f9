package redis

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-scoring-service/internal/domain"
)

// QuestionLoader fetches canonical question content from a backing store.
type QuestionLoader interface {
	LoadQuestion(ctx context.Context, id string) (domain.Question, error)
}

// QuestionVault caches questions in Redis (hash per question) and falls back to a loader on cache miss.
// Questions are stored as: HSET question:{id} prompt .. type .. answer .. weight .. hash ..
// Cached content is re-verified against its hash on every read.
type QuestionVault struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionVault(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionVault {
	return &QuestionVault{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (v *QuestionVault) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	if q, ok, err := v.cached(ctx, id); ok || err != nil {
		return q, err
	}

	result, err, _ := v.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if q, ok, err := v.cached(ctx, id); ok || err != nil {
			return q, err
		}

		q, err := v.loader.LoadQuestion(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		if err := domain.VerifyQuestion(q); err != nil {
			return domain.Question{}, err
		}

		key := questionKey(id)
		pipe := v.client.Pipeline()
		pipe.HSet(ctx, key,
			"prompt", q.Prompt,
			"type", string(q.Type),
			"answer", q.CorrectAnswer,
			"weight", strconv.FormatFloat(q.Weight, 'f', -1, 64),
			"hash", q.ContentHash,
		)
		if ttl := v.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// The cache is best effort; the loaded question is still served.
		_, _ = pipe.Exec(ctx)
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

// Invalidate drops a cached question so the next read reloads it.
func (v *QuestionVault) Invalidate(ctx context.Context, id string) error {
	return v.client.Del(ctx, questionKey(id)).Err()
}

func (v *QuestionVault) cached(ctx context.Context, id string) (domain.Question, bool, error) {
	fields, err := v.client.HGetAll(ctx, questionKey(id)).Result()
	if err != nil || len(fields) == 0 {
		return domain.Question{}, false, nil
	}
	weight, err := strconv.ParseFloat(fields["weight"], 64)
	if err != nil {
		return domain.Question{}, false, domain.ErrQuestionTampered
	}
	q := domain.Question{
		ID:            id,
		Prompt:        fields["prompt"],
		Type:          domain.QuestionType(fields["type"]),
		CorrectAnswer: fields["answer"],
		Weight:        weight,
		ContentHash:   fields["hash"],
	}
	if err := domain.VerifyQuestion(q); err != nil {
		return domain.Question{}, false, err
	}
	return q, true, nil
}

func questionKey(id string) string {
	return "question:" + id
}

func (v *QuestionVault) ttlWithJitter() time.Duration {
	if v.ttl <= 0 {
		return 0
	}
	jitterMax := int64(v.ttl) / 10
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ttl + time.Duration(v.rnd.Int63n(jitterMax+1))
}

package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-scoring-service/internal/domain"
)

// QuestionLoader fetches canonical question content from a backing store.
type QuestionLoader interface {
	LoadQuestion(ctx context.Context, id string) (domain.Question, error)
}

// QuestionVault caches questions with TTL to avoid repeated store hits.
// Every loaded question is checked against its content hash before it is cached.
type QuestionVault struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionVault(loader QuestionLoader, ttl time.Duration) *QuestionVault {
	return &QuestionVault{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestion),
	}
}

func (v *QuestionVault) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	if q, ok := v.cached(id); ok {
		return q, nil
	}

	result, err, _ := v.sf.Do(id, func() (interface{}, error) {
		if q, ok := v.cached(id); ok {
			return q, nil
		}
		q, err := v.loader.LoadQuestion(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		if err := domain.VerifyQuestion(q); err != nil {
			return domain.Question{}, err
		}

		ttl := v.ttlWithJitter()
		if ttl > 0 {
			v.mu.Lock()
			v.cache[id] = cachedQuestion{question: q, expiresAt: v.clock().Add(ttl)}
			v.mu.Unlock()
		}
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

// Invalidate drops a cached question so the next read reloads it.
func (v *QuestionVault) Invalidate(id string) {
	v.mu.Lock()
	delete(v.cache, id)
	v.mu.Unlock()
}

func (v *QuestionVault) cached(id string) (domain.Question, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.cache[id]
	if !ok || !entry.expiresAt.After(v.clock()) {
		return domain.Question{}, false
	}
	return entry.question, true
}

func (v *QuestionVault) ttlWithJitter() time.Duration {
	if v.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(v.ttl) / 10
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ttl + time.Duration(v.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	questions map[string]domain.Question
}

func NewStaticQuestionLoader(questions ...domain.Question) *StaticQuestionLoader {
	m := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		m[q.ID] = q
	}
	return &StaticQuestionLoader{questions: m}
}

func (l *StaticQuestionLoader) LoadQuestion(_ context.Context, id string) (domain.Question, error) {
	if q, ok := l.questions[id]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// ListQuestions pages through the matching questions in ID order.
func (l *StaticQuestionLoader) ListQuestions(_ context.Context, filter domain.QuestionFilter) (domain.QuestionPage, error) {
	matched := make([]domain.Question, 0, len(l.questions))
	for _, q := range l.questions {
		if filter.Matches(q) {
			matched = append(matched, q)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	page := domain.QuestionPage{Total: len(matched)}
	if filter.Offset >= len(matched) {
		return page, nil
	}
	matched = matched[max(filter.Offset, 0):]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	page.Questions = matched
	return page, nil
}

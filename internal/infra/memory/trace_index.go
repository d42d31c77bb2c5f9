package memory

import (
	"context"
	"sync"
	"time"

	"trivia-scoring-service/internal/domain"
)

// TraceIndex keeps accepted answer traces per player and digest. Records older
// than the retention window are pruned lazily.
type TraceIndex struct {
	retention time.Duration
	clock     func() time.Time

	mu      sync.Mutex
	records map[string][]domain.TraceRecord
}

func NewTraceIndex(retention time.Duration) *TraceIndex {
	return &TraceIndex{
		retention: retention,
		clock:     time.Now,
		records:   make(map[string][]domain.TraceRecord),
	}
}

func (t *TraceIndex) Recent(_ context.Context, playerID, digest string) ([]domain.TraceRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := traceKey(playerID, digest)
	kept := t.prune(t.records[key])
	if len(kept) == 0 {
		delete(t.records, key)
		return nil, nil
	}
	t.records[key] = kept
	return append([]domain.TraceRecord(nil), kept...), nil
}

func (t *TraceIndex) Record(_ context.Context, rec domain.TraceRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := traceKey(rec.PlayerID, rec.Digest)
	existing := t.records[key]
	for _, r := range existing {
		if r.SessionID == rec.SessionID {
			return nil
		}
	}
	t.records[key] = append(t.prune(existing), rec)
	return nil
}

func (t *TraceIndex) prune(records []domain.TraceRecord) []domain.TraceRecord {
	if t.retention <= 0 {
		return records
	}
	cutoff := t.clock().Add(-t.retention)
	kept := records[:0]
	for _, r := range records {
		if r.SubmittedAt.After(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

func traceKey(playerID, digest string) string {
	return playerID + "|" + digest
}

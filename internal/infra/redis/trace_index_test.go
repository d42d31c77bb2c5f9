package redis

import (
	"context"
	"testing"
	"time"

	"trivia-scoring-service/internal/domain"
)

func TestTraceIndexRecordsOncePerSession(t *testing.T) {
	mr, client := newClient(t)
	idx := NewTraceIndex(client, time.Hour)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := domain.TraceRecord{PlayerID: "p1", SessionID: "s1", Digest: "d1", SubmittedAt: at}
	if err := idx.Record(ctx, rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	rec.SubmittedAt = at.Add(time.Hour)
	_ = idx.Record(ctx, rec)

	got, err := idx.Recent(ctx, "p1", "d1")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || !got[0].SubmittedAt.Equal(at) {
		t.Fatalf("expected original record, got %+v", got)
	}
	if mr.TTL("trace:p1:d1") <= 0 {
		t.Fatalf("expected trace key ttl")
	}

	mr.FastForward(2 * time.Hour)
	got, _ = idx.Recent(ctx, "p1", "d1")
	if len(got) != 0 {
		t.Fatalf("expected traces expired, got %+v", got)
	}
}

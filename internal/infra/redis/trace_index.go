package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-scoring-service/internal/domain"
)

// TraceIndex keeps accepted traces as HSET trace:{player}:{digest} {sessionID} {createdAt unix ms}.
// Each key expires retention after its last write.
type TraceIndex struct {
	client    *redis.Client
	retention time.Duration
}

func NewTraceIndex(client *redis.Client, retention time.Duration) *TraceIndex {
	return &TraceIndex{client: client, retention: retention}
}

func (t *TraceIndex) Recent(ctx context.Context, playerID, digest string) ([]domain.TraceRecord, error) {
	entries, err := t.client.HGetAll(ctx, traceKey(playerID, digest)).Result()
	if err != nil {
		return nil, fmt.Errorf("read traces: %w", err)
	}
	out := make([]domain.TraceRecord, 0, len(entries))
	for sessionID, at := range entries {
		ms, err := strconv.ParseInt(at, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.TraceRecord{
			PlayerID:  playerID,
			SessionID: sessionID,
			Digest:    digest,
			SubmittedAt: time.UnixMilli(ms).UTC(),
		})
	}
	return out, nil
}

func (t *TraceIndex) Record(ctx context.Context, rec domain.TraceRecord) error {
	key := traceKey(rec.PlayerID, rec.Digest)
	pipe := t.client.TxPipeline()
	pipe.HSetNX(ctx, key, rec.SessionID, rec.SubmittedAt.UnixMilli())
	if t.retention > 0 {
		pipe.Expire(ctx, key, t.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record trace: %w", err)
	}
	return nil
}

func traceKey(playerID, digest string) string {
	return "trace:" + playerID + ":" + digest
}

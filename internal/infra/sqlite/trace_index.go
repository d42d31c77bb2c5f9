package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trivia-scoring-service/internal/domain"
)

// TraceIndex stores accepted traces; rows older than retention are deleted on write.
type TraceIndex struct {
	db        *sql.DB
	retention time.Duration
	clock     func() time.Time
}

func (t *TraceIndex) Recent(ctx context.Context, playerID, digest string) ([]domain.TraceRecord, error) {
	query := `SELECT session_id, created_at_ms FROM traces WHERE player_id = ? AND digest = ?`
	args := []any{playerID, digest}
	if t.retention > 0 {
		query += ` AND created_at_ms > ?`
		args = append(args, t.clock().Add(-t.retention).UnixMilli())
	}
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read traces: %w", err)
	}
	defer rows.Close()

	var out []domain.TraceRecord
	for rows.Next() {
		rec := domain.TraceRecord{PlayerID: playerID, Digest: digest}
		var ms int64
		if err := rows.Scan(&rec.SessionID, &ms); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		rec.SubmittedAt = time.UnixMilli(ms).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *TraceIndex) Record(ctx context.Context, rec domain.TraceRecord) error {
	if _, err := t.db.ExecContext(ctx,
		`INSERT INTO traces (player_id, digest, session_id, created_at_ms) VALUES (?, ?, ?, ?)
ON CONFLICT DO NOTHING`,
		rec.PlayerID, rec.Digest, rec.SessionID, rec.SubmittedAt.UnixMilli()); err != nil {
		return fmt.Errorf("record trace: %w", err)
	}
	if t.retention > 0 {
		cutoff := t.clock().Add(-t.retention).UnixMilli()
		if _, err := t.db.ExecContext(ctx, `DELETE FROM traces WHERE created_at_ms <= ?`, cutoff); err != nil {
			return fmt.Errorf("prune traces: %w", err)
		}
	}
	return nil
}

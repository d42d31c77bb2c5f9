package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-scoring-service/internal/domain"
)

// SessionLedger stores session records as JSONB keyed by id, with the state
// duplicated into its own column for compare-and-set updates.
type SessionLedger struct {
	pool *pgxpool.Pool
}

func NewSessionLedger(pool *pgxpool.Pool) *SessionLedger {
	return &SessionLedger{pool: pool}
}

func (l *SessionLedger) Read(ctx context.Context, id string) (domain.Session, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("read session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return s, nil
}

func (l *SessionLedger) Create(ctx context.Context, s domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO sessions (id, player_id, state, data, created_at) VALUES ($1, $2, $3, $4::jsonb, $5)
ON CONFLICT (id) DO NOTHING`,
		s.ID, s.PlayerID, s.State.String(), string(data), s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (l *SessionLedger) CompareAndSet(ctx context.Context, id string, expected domain.SessionState, next domain.Session) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("marshal session: %w", err)
	}
	tag, err := l.pool.Exec(ctx,
		`UPDATE sessions SET state=$3, data=$4::jsonb, updated_at=now() WHERE id=$1 AND state=$2`,
		id, expected.String(), next.State.String(), string(data))
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := l.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id=$1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return false, domain.ErrSessionNotFound
	}
	return false, nil
}

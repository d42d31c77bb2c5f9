package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"trivia-scoring-service/internal/domain"
)

type SessionLedger struct {
	db *sql.DB
}

func (l *SessionLedger) Read(ctx context.Context, id string) (domain.Session, error) {
	var raw string
	err := l.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("read session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return s, nil
}

func (l *SessionLedger) Create(ctx context.Context, s domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO sessions (id, player_id, state, data, created_at_ms) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		s.ID, s.PlayerID, s.State.String(), string(data), s.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (l *SessionLedger) CompareAndSet(ctx context.Context, id string, expected domain.SessionState, next domain.Session) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("marshal session: %w", err)
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, data = ? WHERE id = ? AND state = ?`,
		next.State.String(), string(data), id, expected.String())
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	var exists int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE id = ?`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return false, domain.ErrSessionNotFound
	}
	return false, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"trivia-scoring-service/internal/domain"
)

// Leaderboard derives standings from the contributions table, one row per
// counted session.
type Leaderboard struct {
	db *sql.DB
}

// rankedQuery orders players by best score, then by when they first reached it, then by ID.
const rankedQuery = `
WITH best AS (
	SELECT player_id, MAX(score) AS best, COUNT(*) AS sessions
	FROM contributions GROUP BY player_id
), reached AS (
	SELECT c.player_id, MIN(c.at_ms) AS at_ms
	FROM contributions c JOIN best b ON b.player_id = c.player_id AND c.score = b.best
	GROUP BY c.player_id
), ranked AS (
	SELECT b.player_id, b.best, b.sessions,
		ROW_NUMBER() OVER (ORDER BY b.best DESC, r.at_ms ASC, b.player_id ASC) AS pos
	FROM best b JOIN reached r ON r.player_id = b.player_id
)`

func (l *Leaderboard) Record(ctx context.Context, c domain.Contribution) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO contributions (session_id, player_id, score, at_ms) VALUES (?, ?, ?, ?)
ON CONFLICT(session_id) DO NOTHING`,
		c.SessionID, c.PlayerID, c.Score, c.At.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("record contribution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record contribution: %w", err)
	}
	return n == 1, nil
}

func (l *Leaderboard) Entry(ctx context.Context, playerID string) (domain.LeaderboardEntry, bool, error) {
	var e domain.LeaderboardEntry
	err := l.db.QueryRowContext(ctx,
		rankedQuery+` SELECT player_id, best, sessions, pos FROM ranked WHERE player_id = ?`, playerID,
	).Scan(&e.PlayerID, &e.BestScore, &e.SessionsCounted, &e.Rank)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("read entry: %w", err)
	}
	return e, true, nil
}

func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		rankedQuery+` SELECT player_id, best, sessions, pos FROM ranked ORDER BY pos LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.BestScore, &e.SessionsCounted, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

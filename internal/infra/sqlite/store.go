package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Store is a single-node backend holding questions, sessions, traces and
// leaderboard contributions in one SQLite file.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open connects to the SQLite database at dsn, applies pragmas and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; also keeps a ":memory:" database on a single connection.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	s := &Store{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Questions() *QuestionStore {
	return &QuestionStore{db: s.db}
}

func (s *Store) Sessions() *SessionLedger {
	return &SessionLedger{db: s.db}
}

func (s *Store) Traces(retention time.Duration) *TraceIndex {
	return &TraceIndex{db: s.db, retention: retention, clock: s.clock}
}

func (s *Store) Leaderboard() *Leaderboard {
	return &Leaderboard{db: s.db}
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			type TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			weight REAL NOT NULL CHECK (weight > 0),
			content_hash TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT '',
			difficulty TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			state TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS traces (
			player_id TEXT NOT NULL,
			digest TEXT NOT NULL,
			session_id TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (player_id, digest, session_id)
		);`,
		`CREATE TABLE IF NOT EXISTS contributions (
			session_id TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			score INTEGER NOT NULL,
			at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_questions_catalog ON questions(mode, difficulty, id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_player ON sessions(player_id, created_at_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_contributions_player ON contributions(player_id, score DESC);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

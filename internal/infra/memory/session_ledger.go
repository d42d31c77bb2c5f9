package memory

import (
	"context"
	"sync"

	"trivia-scoring-service/internal/domain"
)

// SessionLedger is an in-memory implementation of app.SessionLedger.
type SessionLedger struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionLedger() *SessionLedger {
	return &SessionLedger{
		sessions: make(map[string]domain.Session),
	}
}

func (l *SessionLedger) Read(_ context.Context, id string) (domain.Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (l *SessionLedger) Create(_ context.Context, s domain.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sessions[s.ID]; ok {
		return domain.ErrSessionExists
	}
	l.sessions[s.ID] = s.Clone()
	return nil
}

func (l *SessionLedger) CompareAndSet(_ context.Context, id string, expected domain.SessionState, next domain.Session) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.sessions[id]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if cur.State != expected {
		return false, nil
	}
	l.sessions[id] = next.Clone()
	return true, nil
}

// Len reports the number of stored sessions.
func (l *SessionLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

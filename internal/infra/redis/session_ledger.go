package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-scoring-service/internal/domain"
)

// SessionLedger stores sessions as Redis hashes: HSET session:{id} state {state} data {json}.
// Create and CompareAndSet run as Lua scripts so the state check and write are atomic.
type SessionLedger struct {
	client *redis.Client
	ttl    time.Duration
}

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

var casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'state')
if not cur then
  return -1
end
if cur ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[2], 'data', ARGV[3])
if tonumber(ARGV[4]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return 1
`)

// NewSessionLedger returns a ledger whose records expire ttl after their last write (0 keeps them forever).
func NewSessionLedger(client *redis.Client, ttl time.Duration) *SessionLedger {
	return &SessionLedger{client: client, ttl: ttl}
}

func (l *SessionLedger) Read(ctx context.Context, id string) (domain.Session, error) {
	raw, err := l.client.HGet(ctx, sessionKey(id), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("read session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func (l *SessionLedger) Create(ctx context.Context, s domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	created, err := createScript.Run(ctx, l.client, []string{sessionKey(s.ID)},
		s.State.String(), data, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if created == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (l *SessionLedger) CompareAndSet(ctx context.Context, id string, expected domain.SessionState, next domain.Session) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("encode session: %w", err)
	}
	res, err := casScript.Run(ctx, l.client, []string{sessionKey(id)},
		expected.String(), next.State.String(), data, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	switch res {
	case -1:
		return false, domain.ErrSessionNotFound
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"trivia-scoring-service/internal/domain"
)

// Leaderboard keeps best scores in a sorted set. Ties are broken by who
// reached the score first, then by player ID.
//
//	ZSET leaderboard:scores   {player} -> best score
//	HASH leaderboard:best_at  {player} -> unix ms the best score was reached
//	HASH leaderboard:sessions {player} -> sessions counted
//	SET  leaderboard:counted  {sessionID}
type Leaderboard struct {
	client *redis.Client
	prefix string
}

var recordScript = redis.NewScript(`
if redis.call('SADD', KEYS[4], ARGV[1]) == 0 then
  return 0
end
redis.call('HINCRBY', KEYS[3], ARGV[2], 1)
local cur = redis.call('ZSCORE', KEYS[1], ARGV[2])
local score = tonumber(ARGV[3])
if (not cur) or score > tonumber(cur) then
  redis.call('ZADD', KEYS[1], score, ARGV[2])
  redis.call('HSET', KEYS[2], ARGV[2], ARGV[4])
elseif score == tonumber(cur) then
  local at = redis.call('HGET', KEYS[2], ARGV[2])
  if (not at) or tonumber(ARGV[4]) < tonumber(at) then
    redis.call('HSET', KEYS[2], ARGV[2], ARGV[4])
  end
end
return 1
`)

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client, prefix: "leaderboard"}
}

func (l *Leaderboard) Record(ctx context.Context, c domain.Contribution) (bool, error) {
	counted, err := recordScript.Run(ctx, l.client,
		[]string{l.key("scores"), l.key("best_at"), l.key("sessions"), l.key("counted")},
		c.SessionID, c.PlayerID, c.Score, c.At.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("record contribution: %w", err)
	}
	return counted == 1, nil
}

func (l *Leaderboard) Entry(ctx context.Context, playerID string) (domain.LeaderboardEntry, bool, error) {
	score, err := l.client.ZScore(ctx, l.key("scores"), playerID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("read score: %w", err)
	}

	bound := strconv.FormatFloat(score, 'f', -1, 64)
	above, err := l.client.ZCount(ctx, l.key("scores"), "("+bound, "+inf").Result()
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("count higher scores: %w", err)
	}
	tied, err := l.client.ZRangeByScoreWithScores(ctx, l.key("scores"), &redis.ZRangeBy{Min: bound, Max: bound}).Result()
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("read tied scores: %w", err)
	}
	entries, err := l.entries(ctx, tied)
	if err != nil {
		return domain.LeaderboardEntry{}, false, err
	}
	for i, e := range entries {
		if e.PlayerID == playerID {
			e.Rank = int(above) + i + 1
			return e, true, nil
		}
	}
	return domain.LeaderboardEntry{}, false, nil
}

func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	head, err := l.client.ZRevRangeWithScores(ctx, l.key("scores"), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if limit > 0 && len(head) == limit {
		// Pull in every player tied with the last row so the tie-break decides who makes the cut.
		bound := strconv.FormatFloat(head[len(head)-1].Score, 'f', -1, 64)
		tied, err := l.client.ZRangeByScoreWithScores(ctx, l.key("scores"), &redis.ZRangeBy{Min: bound, Max: bound}).Result()
		if err != nil {
			return nil, fmt.Errorf("read tied scores: %w", err)
		}
		head = mergeMembers(head, tied)
	}

	entries, err := l.entries(ctx, head)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// entries loads tie-break data for members and sorts them into leaderboard order.
func (l *Leaderboard) entries(ctx context.Context, members []redis.Z) ([]domain.LeaderboardEntry, error) {
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Member.(string)
	}
	bestAt, err := l.client.HMGet(ctx, l.key("best_at"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read tie-break times: %w", err)
	}
	sessions, err := l.client.HMGet(ctx, l.key("sessions"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read session counts: %w", err)
	}

	type row struct {
		entry domain.LeaderboardEntry
		at    int64
	}
	rows := make([]row, len(members))
	for i, m := range members {
		rows[i] = row{
			entry: domain.LeaderboardEntry{
				PlayerID:        ids[i],
				BestScore:       int64(m.Score),
				SessionsCounted: int(parseInt(sessions[i])),
			},
			at: parseInt(bestAt[i]),
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].entry.BestScore != rows[j].entry.BestScore {
			return rows[i].entry.BestScore > rows[j].entry.BestScore
		}
		if rows[i].at != rows[j].at {
			return rows[i].at < rows[j].at
		}
		return rows[i].entry.PlayerID < rows[j].entry.PlayerID
	})

	out := make([]domain.LeaderboardEntry, len(rows))
	for i, r := range rows {
		out[i] = r.entry
	}
	return out, nil
}

func (l *Leaderboard) key(name string) string {
	return l.prefix + ":" + name
}

func mergeMembers(a, b []redis.Z) []redis.Z {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]redis.Z, 0, len(a)+len(b))
	for _, z := range append(a, b...) {
		id := z.Member.(string)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, z)
	}
	return out
}

func parseInt(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

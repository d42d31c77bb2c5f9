package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trivia-scoring-service/internal/domain"
)

// Leaderboard is an in-memory implementation of app.Leaderboard. It keeps each
// player's best eligible score and counts every session at most once.
type Leaderboard struct {
	mu      sync.RWMutex
	players map[string]*standing
	counted map[string]struct{}
}

type standing struct {
	playerID string
	best     int64
	bestAt   time.Time
	sessions int
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{
		players: make(map[string]*standing),
		counted: make(map[string]struct{}),
	}
}

func (l *Leaderboard) Record(_ context.Context, c domain.Contribution) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.counted[c.SessionID]; ok {
		return false, nil
	}
	l.counted[c.SessionID] = struct{}{}

	p, ok := l.players[c.PlayerID]
	if !ok {
		p = &standing{playerID: c.PlayerID, best: c.Score, bestAt: c.At}
		l.players[c.PlayerID] = p
	} else if c.Score > p.best || (c.Score == p.best && c.At.Before(p.bestAt)) {
		p.best = c.Score
		p.bestAt = c.At
	}
	p.sessions++
	return true, nil
}

func (l *Leaderboard) Entry(_ context.Context, playerID string) (domain.LeaderboardEntry, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.players[playerID]; !ok {
		return domain.LeaderboardEntry{}, false, nil
	}
	for _, e := range l.rankedLocked() {
		if e.PlayerID == playerID {
			return e, true, nil
		}
	}
	return domain.LeaderboardEntry{}, false, nil
}

func (l *Leaderboard) Top(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := l.rankedLocked()
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (l *Leaderboard) rankedLocked() []domain.LeaderboardEntry {
	standings := make([]*standing, 0, len(l.players))
	for _, p := range l.players {
		standings = append(standings, p)
	}
	// Score desc, then whoever reached the score earlier, then player ID.
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].best != standings[j].best {
			return standings[i].best > standings[j].best
		}
		if !standings[i].bestAt.Equal(standings[j].bestAt) {
			return standings[i].bestAt.Before(standings[j].bestAt)
		}
		return standings[i].playerID < standings[j].playerID
	})

	entries := make([]domain.LeaderboardEntry, len(standings))
	for i, p := range standings {
		entries[i] = domain.LeaderboardEntry{
			PlayerID:        p.playerID,
			BestScore:       p.best,
			Rank:            i + 1,
			SessionsCounted: p.sessions,
		}
	}
	return entries
}

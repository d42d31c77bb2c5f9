package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-scoring-service/internal/domain"
)

func TestLeaderboardCountsSessionOnce(t *testing.T) {
	lb := NewLeaderboard()
	ctx := context.Background()
	c := domain.Contribution{SessionID: "s1", PlayerID: "p1", Score: 5, At: time.Now()}

	counted, err := lb.Record(ctx, c)
	require.NoError(t, err)
	assert.True(t, counted)

	counted, err = lb.Record(ctx, c)
	require.NoError(t, err)
	assert.False(t, counted)

	entry, ok, err := lb.Entry(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, entry.SessionsCounted)
	assert.Equal(t, int64(5), entry.BestScore)
}

func TestLeaderboardRanking(t *testing.T) {
	lb := NewLeaderboard()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	_, _ = lb.Record(ctx, domain.Contribution{SessionID: "a1", PlayerID: "alice", Score: 7, At: base.Add(2 * time.Second)})
	_, _ = lb.Record(ctx, domain.Contribution{SessionID: "b1", PlayerID: "bob", Score: 7, At: base.Add(time.Second)})
	_, _ = lb.Record(ctx, domain.Contribution{SessionID: "c1", PlayerID: "carol", Score: 9, At: base.Add(3 * time.Second)})
	_, _ = lb.Record(ctx, domain.Contribution{SessionID: "c2", PlayerID: "carol", Score: 4, At: base.Add(4 * time.Second)})

	top, err := lb.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"carol", "bob", "alice"}, []string{top[0].PlayerID, top[1].PlayerID, top[2].PlayerID})
	assert.Equal(t, int64(9), top[0].BestScore)
	assert.Equal(t, 2, top[0].SessionsCounted)
	assert.Equal(t, 3, top[2].Rank)

	limited, _ := lb.Top(ctx, 1)
	assert.Len(t, limited, 1)

	_, ok, _ := lb.Entry(ctx, "dave")
	assert.False(t, ok)
}

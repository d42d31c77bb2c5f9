package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-scoring-service/internal/app"
	"trivia-scoring-service/internal/domain"
	"trivia-scoring-service/internal/infra/memory"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		domain.Question{ID: "Q1", Prompt: "Capital of France?", Type: domain.QuestionText, CorrectAnswer: "Paris", Weight: 10}.Sealed(),
		domain.Question{ID: "Q2", Prompt: "6 x 7?", Type: domain.QuestionInteger, CorrectAnswer: "42", Weight: 5}.Sealed(),
	}
}

func TestQuestionStoreRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	qs := store.Questions()

	require.NoError(t, qs.SaveQuestions(ctx, sampleQuestions()))
	require.NoError(t, qs.SaveQuestions(ctx, sampleQuestions()))

	got, err := qs.LoadQuestion(ctx, "Q2")
	require.NoError(t, err)
	assert.Equal(t, sampleQuestions()[1], got)
	assert.NoError(t, domain.VerifyQuestion(got))

	_, err = qs.LoadQuestion(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestQuestionStoreListsByModeAndDifficulty(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	qs := store.Questions()

	catalog := []domain.Question{
		domain.Question{ID: "c1", Prompt: "p1", Type: domain.QuestionText, CorrectAnswer: "a", Weight: 1, Mode: "classic", Difficulty: "easy"}.Sealed(),
		domain.Question{ID: "c2", Prompt: "p2", Type: domain.QuestionText, CorrectAnswer: "a", Weight: 1, Mode: "classic", Difficulty: "hard"}.Sealed(),
		domain.Question{ID: "c3", Prompt: "p3", Type: domain.QuestionText, CorrectAnswer: "a", Weight: 1, Mode: "classic", Difficulty: "easy"}.Sealed(),
		domain.Question{ID: "b1", Prompt: "p4", Type: domain.QuestionText, CorrectAnswer: "a", Weight: 1, Mode: "blitz", Difficulty: "easy"}.Sealed(),
	}
	require.NoError(t, qs.SaveQuestions(ctx, catalog))

	page, err := qs.ListQuestions(ctx, domain.QuestionFilter{Mode: "classic", Difficulty: "easy"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Questions, 2)
	assert.Equal(t, "c1", page.Questions[0].ID)
	assert.Equal(t, catalog[0], page.Questions[0])

	page, err = qs.ListQuestions(ctx, domain.QuestionFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Questions, 2)
	assert.Equal(t, []string{"c1", "c2"}, []string{page.Questions[0].ID, page.Questions[1].ID})
}

func TestQuestionStoreRejectsNonPositiveWeight(t *testing.T) {
	qs := openStore(t).Questions()
	bad := domain.Question{ID: "w0", Prompt: "p", Type: domain.QuestionText, CorrectAnswer: "a", Weight: 0}.Sealed()
	err := qs.SaveQuestions(context.Background(), []domain.Question{bad})
	assert.ErrorIs(t, err, domain.ErrInvalidQuestion)

	_, err = qs.LoadQuestion(context.Background(), "w0")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestSessionLedgerCompareAndSet(t *testing.T) {
	ledger := openStore(t).Sessions()
	ctx := context.Background()
	s := domain.Session{ID: "s1", PlayerID: "p1", QuestionIDs: []string{"Q1"}, State: domain.StateOpen, CreatedAt: time.Now().UTC()}

	require.NoError(t, ledger.Create(ctx, s))
	assert.ErrorIs(t, ledger.Create(ctx, s), domain.ErrSessionExists)

	next := s.Clone()
	next.State = domain.StateSubmitted
	ok, err := ledger.CompareAndSet(ctx, "s1", domain.StateScored, next)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ledger.CompareAndSet(ctx, "s1", domain.StateOpen, next)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := ledger.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSubmitted, got.State)

	_, err = ledger.CompareAndSet(ctx, "missing", domain.StateOpen, next)
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestTraceIndexRetention(t *testing.T) {
	store := openStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }
	idx := store.Traces(time.Hour)
	ctx := context.Background()

	require.NoError(t, idx.Record(ctx, domain.TraceRecord{PlayerID: "p1", SessionID: "old", Digest: "d", SubmittedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, idx.Record(ctx, domain.TraceRecord{PlayerID: "p1", SessionID: "new", Digest: "d", SubmittedAt: now.Add(-time.Minute)}))
	require.NoError(t, idx.Record(ctx, domain.TraceRecord{PlayerID: "p1", SessionID: "new", Digest: "d", SubmittedAt: now.Add(-time.Minute)}))

	got, err := idx.Recent(ctx, "p1", "d")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].SessionID)
}

func TestLeaderboardRanking(t *testing.T) {
	lb := openStore(t).Leaderboard()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	counted, err := lb.Record(ctx, domain.Contribution{SessionID: "a1", PlayerID: "alice", Score: 7, At: base.Add(2 * time.Second)})
	require.NoError(t, err)
	assert.True(t, counted)
	counted, _ = lb.Record(ctx, domain.Contribution{SessionID: "a1", PlayerID: "alice", Score: 7, At: base.Add(2 * time.Second)})
	assert.False(t, counted)
	_, _ = lb.Record(ctx, domain.Contribution{SessionID: "b1", PlayerID: "bob", Score: 7, At: base.Add(time.Second)})
	_, _ = lb.Record(ctx, domain.Contribution{SessionID: "c1", PlayerID: "carol", Score: 9, At: base.Add(3 * time.Second)})
	_, _ = lb.Record(ctx, domain.Contribution{SessionID: "c2", PlayerID: "carol", Score: 4, At: base.Add(4 * time.Second)})

	top, err := lb.Top(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "carol", top[0].PlayerID)
	assert.Equal(t, 2, top[0].SessionsCounted)
	assert.Equal(t, "bob", top[1].PlayerID)
	assert.Equal(t, "alice", top[2].PlayerID)

	alice, ok, err := lb.Entry(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, alice.Rank)

	_, ok, err = lb.Entry(ctx, "dave")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGameServiceOnSQLite(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	require.NoError(t, store.Questions().SaveQuestions(ctx, sampleQuestions()))

	vault := memory.NewQuestionVault(store.Questions(), time.Minute)
	service := app.NewGameService(store.Sessions(), vault, store.Traces(24*time.Hour), store.Leaderboard())

	session, err := service.OpenSession(ctx, "p1", "classic", "easy", []string{"Q1", "Q2"})
	require.NoError(t, err)
	res, err := service.SubmitAnswers(ctx, "p1", session.ID, []domain.AnswerSubmission{
		{QuestionID: "Q1", SubmittedAnswer: "paris", ElapsedMillis: 2000},
		{QuestionID: "Q2", SubmittedAnswer: "7", ElapsedMillis: 1500},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictTrusted, res.Verdict)

	fin, err := service.FinalizeSession(ctx, "p1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), fin.Score)
	require.NotNil(t, fin.Rank)
	assert.Equal(t, 1, *fin.Rank)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"trivia-scoring-service/internal/domain"
)

// SessionLedger abstracts the durable session store (in-memory, Redis, Postgres, SQLite).
// Every write after Create goes through CompareAndSet.
type SessionLedger interface {
	Read(ctx context.Context, id string) (domain.Session, error)
	Create(ctx context.Context, s domain.Session) error
	// CompareAndSet stores next only if the stored state still equals expected.
	CompareAndSet(ctx context.Context, id string, expected domain.SessionState, next domain.Session) (bool, error)
}

// QuestionVault serves canonical question content (from cache/backing store).
type QuestionVault interface {
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
}

// QuestionCatalog lists the question store for browsing and server-side selection.
type QuestionCatalog interface {
	ListQuestions(ctx context.Context, filter domain.QuestionFilter) (domain.QuestionPage, error)
}

// TraceIndex remembers the answer traces of accepted sessions.
type TraceIndex interface {
	Recent(ctx context.Context, playerID, digest string) ([]domain.TraceRecord, error)
	Record(ctx context.Context, rec domain.TraceRecord) error
}

// Leaderboard aggregates finalized, eligible sessions. Record must be
// idempotent per session ID and report false when the session was already counted.
type Leaderboard interface {
	Record(ctx context.Context, c domain.Contribution) (bool, error)
	Entry(ctx context.Context, playerID string) (domain.LeaderboardEntry, bool, error)
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// GameService contains the session lifecycle use cases.
type GameService struct {
	ledger    SessionLedger
	vault     QuestionVault
	catalog   QuestionCatalog
	traces    TraceIndex
	board     Leaderboard
	feed      *LeaderboardFeed
	evaluator *AntiCheatEvaluator
	scorer    *Scorer
	sync      *SyncReconciler
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	shuffle   func(n int, swap func(i, j int))
	feedSize  int
}

const (
	// MaxSessionQuestions bounds server-side question selection.
	MaxSessionQuestions = 50
	// maxSelectionPool caps how many catalog rows are considered for one selection.
	maxSelectionPool = 1000
)

type Option func(*GameService)

// WithClock is mainly for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *GameService) { s.logger = logger }
}

func WithAntiCheat(cfg AntiCheatConfig) Option {
	return func(s *GameService) { s.evaluator = NewAntiCheatEvaluator(cfg) }
}

// WithFeed publishes a fresh top-N snapshot to feed after every leaderboard change.
func WithFeed(feed *LeaderboardFeed, size int) Option {
	return func(s *GameService) {
		s.feed = feed
		s.feedSize = size
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *GameService) { s.newID = newID }
}

// WithCatalog enables question listing and StartSession.
func WithCatalog(catalog QuestionCatalog) Option {
	return func(s *GameService) { s.catalog = catalog }
}

// WithShuffle replaces the random permutation used by StartSession.
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(s *GameService) { s.shuffle = shuffle }
}

func NewGameService(ledger SessionLedger, vault QuestionVault, traces TraceIndex, board Leaderboard, opts ...Option) *GameService {
	s := &GameService{
		ledger:    ledger,
		vault:     vault,
		traces:    traces,
		board:     board,
		evaluator: NewAntiCheatEvaluator(DefaultAntiCheatConfig()),
		scorer:    NewScorer(),
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
		shuffle:   rand.Shuffle,
		feedSize:  10,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sync = newSyncReconciler(s)
	return s
}

// OpenSession creates a new Open session over questions that exist in the vault.
func (s *GameService) OpenSession(ctx context.Context, playerID, mode, difficulty string, questionIDs []string) (domain.Session, error) {
	session := domain.Session{
		ID:          s.newID(),
		PlayerID:    playerID,
		Mode:        mode,
		Difficulty:  difficulty,
		QuestionIDs: append([]string(nil), questionIDs...),
		State:       domain.StateOpen,
		CreatedAt:   s.now().UTC(),
	}
	if err := ValidateSession(session); err != nil {
		return domain.Session{}, err
	}
	if _, err := s.questions(ctx, session.QuestionIDs); err != nil {
		return domain.Session{}, err
	}
	if err := s.ledger.Create(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// StartSession picks count random catalog questions matching mode and
// difficulty and opens a session over them. The chosen questions are returned
// in session order.
func (s *GameService) StartSession(ctx context.Context, playerID, mode, difficulty string, count int) (domain.Session, []domain.Question, error) {
	if count < 1 || count > MaxSessionQuestions {
		return domain.Session{}, nil, fmt.Errorf("%w: question count %d outside 1..%d", domain.ErrInvalidSession, count, MaxSessionQuestions)
	}
	if s.catalog == nil {
		return domain.Session{}, nil, domain.ErrCatalogUnavailable
	}
	page, err := s.catalog.ListQuestions(ctx, domain.QuestionFilter{Mode: mode, Difficulty: difficulty, Limit: maxSelectionPool})
	if err != nil {
		return domain.Session{}, nil, fmt.Errorf("select questions: %w", err)
	}
	pool := page.Questions
	if len(pool) < count {
		return domain.Session{}, nil, fmt.Errorf("%w: want %d, have %d", domain.ErrNotEnoughQuestions, count, len(pool))
	}
	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	pool = pool[:count]

	ids := make([]string, len(pool))
	for i, q := range pool {
		ids[i] = q.ID
	}
	session, err := s.OpenSession(ctx, playerID, mode, difficulty, ids)
	if err != nil {
		return domain.Session{}, nil, err
	}
	return session, pool, nil
}

// ListQuestions returns one verified page of the catalog.
func (s *GameService) ListQuestions(ctx context.Context, filter domain.QuestionFilter) (domain.QuestionPage, error) {
	if s.catalog == nil {
		return domain.QuestionPage{}, domain.ErrCatalogUnavailable
	}
	page, err := s.catalog.ListQuestions(ctx, filter)
	if err != nil {
		return domain.QuestionPage{}, err
	}
	for _, q := range page.Questions {
		if err := domain.VerifyQuestion(q); err != nil {
			s.logger.Error("question catalog integrity fault", "question", q.ID, "error", err)
			return domain.QuestionPage{}, err
		}
	}
	return page, nil
}

// SubmitAnswers drives a session Open -> Submitted -> Scored.
func (s *GameService) SubmitAnswers(ctx context.Context, playerID, sessionID string, answers []domain.AnswerSubmission) (domain.SubmitResult, error) {
	cur, err := s.owned(ctx, playerID, sessionID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	submitted, err := s.submit(ctx, cur, answers)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	scored, err := s.score(ctx, submitted)
	if err != nil {
		return domain.SubmitResult{SessionID: sessionID, State: submitted.State}, err
	}
	return domain.SubmitResult{SessionID: sessionID, State: scored.State, Verdict: scored.Verdict}, nil
}

// FinalizeSession drives Scored -> Finalized. Repeating it is a no-op that
// returns the same score and leaves the leaderboard untouched.
func (s *GameService) FinalizeSession(ctx context.Context, playerID, sessionID string) (domain.FinalizeResult, error) {
	cur, err := s.owned(ctx, playerID, sessionID)
	if err != nil {
		return domain.FinalizeResult{}, err
	}
	final, err := s.finalize(ctx, cur)
	if err != nil {
		return domain.FinalizeResult{}, err
	}
	return s.finalizeResult(ctx, final)
}

// SyncBatch reconciles an offline batch for one verified player.
func (s *GameService) SyncBatch(ctx context.Context, playerID string, sessions []domain.Session) ([]domain.SyncResult, error) {
	return s.sync.Reconcile(ctx, playerID, sessions)
}

// SyncAll reconciles several players' batches concurrently.
func (s *GameService) SyncAll(ctx context.Context, batches map[string][]domain.Session) (map[string][]domain.SyncResult, error) {
	return s.sync.ReconcileAll(ctx, batches)
}

// Session returns a player's own session record.
func (s *GameService) Session(ctx context.Context, playerID, sessionID string) (domain.Session, error) {
	return s.owned(ctx, playerID, sessionID)
}

// Leaderboard returns the top entries.
func (s *GameService) Leaderboard(ctx context.Context, limit int) (domain.Leaderboard, error) {
	entries, err := s.board.Top(ctx, limit)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.Leaderboard{Entries: entries, UpdatedAt: s.now().UTC()}, nil
}

// PlayerStats returns the player's leaderboard entry, if they have one.
func (s *GameService) PlayerStats(ctx context.Context, playerID string) (domain.LeaderboardEntry, bool, error) {
	return s.board.Entry(ctx, playerID)
}

// Question returns verified vault content for one question.
func (s *GameService) Question(ctx context.Context, id string) (domain.Question, error) {
	return s.vault.GetQuestion(ctx, id)
}

// Feed exposes the live leaderboard feed, or nil when none is configured.
func (s *GameService) Feed() *LeaderboardFeed {
	return s.feed
}

func (s *GameService) owned(ctx context.Context, playerID, sessionID string) (domain.Session, error) {
	cur, err := s.ledger.Read(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if cur.PlayerID != playerID {
		return domain.Session{}, domain.ErrSessionForbidden
	}
	return cur, nil
}

func (s *GameService) submit(ctx context.Context, cur domain.Session, answers []domain.AnswerSubmission) (domain.Session, error) {
	next, err := Submit(cur, answers, s.now().UTC())
	if err != nil {
		return domain.Session{}, err
	}
	stored, ok, err := s.commit(ctx, domain.StateOpen, next)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, &domain.TransitionError{Current: stored.State, Requested: domain.StateSubmitted}
	}
	return stored, nil
}

// score evaluates and scores a Submitted session and commits it as Scored.
func (s *GameService) score(ctx context.Context, cur domain.Session) (domain.Session, error) {
	questions, err := s.questions(ctx, cur.QuestionIDs)
	if err != nil {
		if domain.IsIntegrityFault(err) {
			s.logger.Error("question vault integrity fault", "session", cur.ID, "error", err)
		}
		return domain.Session{}, err
	}

	prior, err := s.traces.Recent(ctx, cur.PlayerID, domain.TraceDigest(cur.Answers))
	if err != nil {
		return domain.Session{}, fmt.Errorf("load prior traces: %w", err)
	}
	ev, err := s.evaluator.Evaluate(cur, questions, prior)
	if err != nil {
		return domain.Session{}, err
	}
	report, err := s.scorer.Score(cur, questions, ev.Verdict)
	if err != nil {
		return domain.Session{}, err
	}
	next, err := MarkScored(cur, ev.Verdict, report, s.now().UTC())
	if err != nil {
		return domain.Session{}, err
	}

	stored, ok, err := s.commit(ctx, domain.StateSubmitted, next)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		if stored.State >= domain.StateScored {
			// Another worker scored it first; its record is authoritative.
			return stored, nil
		}
		return domain.Session{}, domain.ErrConcurrentUpdate
	}

	switch ev.Verdict {
	case domain.VerdictRejected:
		s.logger.Warn("session rejected", "session", cur.ID, "player", cur.PlayerID, "reason", ev.Reason)
	case domain.VerdictSuspicious:
		s.logger.Warn("session flagged for review", "session", cur.ID, "player", cur.PlayerID,
			"reason", ev.Reason, "violations", len(ev.Violations))
	}
	if ev.Verdict != domain.VerdictRejected {
		rec := domain.TraceRecord{PlayerID: cur.PlayerID, SessionID: cur.ID, Digest: ev.Digest, SubmittedAt: *cur.SubmittedAt}
		if err := s.traces.Record(ctx, rec); err != nil {
			s.logger.Warn("record answer trace", "session", cur.ID, "error", err)
		}
	}
	return stored, nil
}

// finalize updates the leaderboard and then commits Scored -> Finalized.
func (s *GameService) finalize(ctx context.Context, cur domain.Session) (domain.Session, error) {
	next, changed, err := Finalize(cur, s.now().UTC())
	if err != nil || !changed {
		return next, err
	}

	counted := false
	if cur.Eligible && cur.Score != nil {
		counted, err = s.board.Record(ctx, domain.Contribution{
			SessionID: cur.ID,
			PlayerID:  cur.PlayerID,
			Score:     *cur.Score,
			At:        *next.FinalizedAt,
		})
		if err != nil {
			return domain.Session{}, fmt.Errorf("update leaderboard: %w", err)
		}
	}

	stored, ok, err := s.commit(ctx, domain.StateScored, next)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok && stored.State != domain.StateFinalized {
		return domain.Session{}, domain.ErrConcurrentUpdate
	}
	if counted {
		s.publish(ctx)
	}
	return stored, nil
}

func (s *GameService) finalizeResult(ctx context.Context, final domain.Session) (domain.FinalizeResult, error) {
	res := domain.FinalizeResult{SessionID: final.ID, Eligible: final.Eligible}
	if final.Score != nil {
		res.Score = *final.Score
	}
	if final.Eligible {
		entry, ok, err := s.board.Entry(ctx, final.PlayerID)
		if err != nil {
			return domain.FinalizeResult{}, err
		}
		if ok {
			rank := entry.Rank
			res.Rank = &rank
		}
	}
	return res, nil
}

// commit performs a compare-and-set and, when it loses, returns the record that won.
func (s *GameService) commit(ctx context.Context, expected domain.SessionState, next domain.Session) (domain.Session, bool, error) {
	ok, err := s.ledger.CompareAndSet(ctx, next.ID, expected, next)
	if err != nil {
		return domain.Session{}, false, err
	}
	if ok {
		return next, true, nil
	}
	cur, err := s.ledger.Read(ctx, next.ID)
	if err != nil {
		return domain.Session{}, false, err
	}
	return cur, false, nil
}

// questions fetches every referenced question concurrently.
func (s *GameService) questions(ctx context.Context, ids []string) (map[string]domain.Question, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]domain.Question, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			q, err := s.vault.GetQuestion(gctx, id)
			if errors.Is(err, domain.ErrQuestionNotFound) {
				return fmt.Errorf("%w: %q", domain.ErrUnknownQuestion, id)
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out[id] = q
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GameService) publish(ctx context.Context) {
	if s.feed == nil {
		return
	}
	lb, err := s.Leaderboard(ctx, s.feedSize)
	if err != nil {
		s.logger.Warn("refresh leaderboard feed", "error", err)
		return
	}
	s.feed.Publish(lb)
}

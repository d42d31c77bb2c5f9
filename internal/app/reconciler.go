package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"trivia-scoring-service/internal/domain"
)

// SyncReconciler merges offline session batches into the ledger. Batches of
// the same player are serialized; different players proceed in parallel.
type SyncReconciler struct {
	svc   *GameService
	locks *keyedMutex
}

func newSyncReconciler(svc *GameService) *SyncReconciler {
	return &SyncReconciler{svc: svc, locks: newKeyedMutex()}
}

// Reconcile applies a batch in CreatedAt order and reports one result per
// session. A failing session never aborts the rest of the batch. When ctx is
// cancelled, the unprocessed sessions are reported as failed.
func (r *SyncReconciler) Reconcile(ctx context.Context, playerID string, batch []domain.Session) ([]domain.SyncResult, error) {
	ordered := make([]domain.Session, len(batch))
	copy(ordered, batch)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	unlock := r.locks.Lock(playerID)
	defer unlock()

	results := make([]domain.SyncResult, 0, len(ordered))
	for i, in := range ordered {
		if err := ctx.Err(); err != nil {
			for _, rest := range ordered[i:] {
				results = append(results, failed(rest, err))
			}
			r.svc.logger.Warn("sync batch interrupted", "player", playerID, "remaining", len(ordered)-i)
			return results, err
		}
		res := r.reconcileOne(ctx, playerID, in)
		if res.Status == domain.SyncFailed {
			r.svc.logger.Info("sync session failed", "player", playerID, "session", in.ID, "code", res.Code)
		}
		results = append(results, res)
	}
	return results, nil
}

// ReconcileAll fans several players' batches out over a bounded worker group.
func (r *SyncReconciler) ReconcileAll(ctx context.Context, batches map[string][]domain.Session) (map[string][]domain.SyncResult, error) {
	var (
		mu  sync.Mutex
		out = make(map[string][]domain.SyncResult, len(batches))
	)
	var g errgroup.Group
	g.SetLimit(16)
	for playerID, batch := range batches {
		playerID, batch := playerID, batch
		g.Go(func() error {
			res, err := r.Reconcile(ctx, playerID, batch)
			mu.Lock()
			out[playerID] = res
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	return out, err
}

func (r *SyncReconciler) reconcileOne(ctx context.Context, playerID string, in domain.Session) domain.SyncResult {
	if in.PlayerID != "" && in.PlayerID != playerID {
		return failed(in, domain.ErrSessionForbidden)
	}
	in.PlayerID = playerID
	if err := ValidateSession(in); err != nil {
		return failed(in, err)
	}
	// Clients never finalize; a Finalized claim is treated as a finished game awaiting finalization.
	claimed := in.State
	if claimed > domain.StateScored {
		claimed = domain.StateScored
	}

	cur, err := r.svc.ledger.Read(ctx, in.ID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		cur = serverOwned(in)
		if err := r.svc.ledger.Create(ctx, cur); err != nil {
			if !errors.Is(err, domain.ErrSessionExists) {
				return failed(in, err)
			}
			// Lost a race with an online request; reconcile against its record.
			if cur, err = r.svc.ledger.Read(ctx, in.ID); err != nil {
				return failed(in, err)
			}
			return r.merge(ctx, cur, in, claimed)
		}
		return r.advance(ctx, cur, in, claimed)
	case err != nil:
		return failed(in, err)
	}
	return r.merge(ctx, cur, in, claimed)
}

// merge resolves an incoming record against an existing ledger record.
func (r *SyncReconciler) merge(ctx context.Context, cur, in domain.Session, claimed domain.SessionState) domain.SyncResult {
	switch {
	case cur.PlayerID != in.PlayerID:
		return failed(in, domain.ErrSessionForbidden)
	case cur.State == domain.StateFinalized:
		return result(cur, domain.SyncAlreadySynced)
	case cur.State >= claimed:
		return result(cur, domain.SyncSuperseded)
	}
	return r.advance(ctx, cur, in, claimed)
}

// advance re-runs the server-side pipeline from the ledger state. Answers come
// from the client; verdict and score never do. The claimed state only decides
// whether the client's answers are submitted: a Submitted record is always
// scored and finalized.
func (r *SyncReconciler) advance(ctx context.Context, cur, in domain.Session, claimed domain.SessionState) domain.SyncResult {
	var err error
	if cur.State == domain.StateOpen && claimed >= domain.StateSubmitted {
		if cur, err = r.svc.submit(ctx, cur, in.Answers); err != nil {
			return failed(in, err)
		}
	}
	if cur.State == domain.StateSubmitted {
		if cur, err = r.svc.score(ctx, cur); err != nil {
			return failed(in, err)
		}
	}
	if cur.State == domain.StateScored {
		if cur, err = r.svc.finalize(ctx, cur); err != nil {
			return failed(in, err)
		}
	}
	return result(cur, domain.SyncSynced)
}

// serverOwned strips every server-derived field from a client record.
func serverOwned(in domain.Session) domain.Session {
	s := in.Clone()
	s.State = domain.StateOpen
	s.Score = nil
	s.Verdict = ""
	s.Eligible = false
	s.Results = nil
	s.SubmittedAt = nil
	s.ScoredAt = nil
	s.FinalizedAt = nil
	if in.State != domain.StateOpen {
		// Submitted answers are applied through the Submit transition.
		s.Answers = nil
	}
	return s
}

func result(s domain.Session, status domain.SyncStatus) domain.SyncResult {
	return domain.SyncResult{SessionID: s.ID, Status: status, State: s.State, Verdict: s.Verdict}
}

func failed(s domain.Session, err error) domain.SyncResult {
	return domain.SyncResult{
		SessionID: s.ID,
		Status:    domain.SyncFailed,
		State:     s.State,
		Code:      domain.Code(err),
		Message:   err.Error(),
	}
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

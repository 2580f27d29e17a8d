package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bwise1/voteledger/internal/model"
)

const (
	DefaultReconcileAttempts = 5
	DefaultReconcileBackoff  = 50 * time.Millisecond
	DefaultReconcileTimeout  = 5 * time.Second
)

type ReconcilerConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// Reconciler folds vote events into the denormalized entity counter. Each
// event is applied at most once; the applied marker and the counter move in
// the same store transaction.
type Reconciler struct {
	store   Store
	cfg     ReconcilerConfig
	metrics Recorder
}

func NewReconciler(store Store, cfg ReconcilerConfig, metrics Recorder) *Reconciler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultReconcileAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultReconcileTimeout
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Reconciler{store: store, cfg: cfg, metrics: metrics}
}

// Apply applies ev to its entity counter. It ignores cancellation of ctx: the
// event is already durable, so giving up halfway would only leave work for the
// sweeper.
func (r *Reconciler) Apply(ctx context.Context, ev model.VoteEvent) error {
	ctx = context.WithoutCancel(ctx)

	var lastErr error
	delay := r.cfg.Backoff
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		applied, err := r.store.ApplyVote(actx, ev.ID)
		cancel()
		if err == nil {
			if applied {
				r.metrics.RecordReconcile("applied")
			} else {
				r.metrics.RecordReconcile("duplicate")
			}
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrNotFound) {
			return r.failed(ev, attempt, err)
		}

		log.Warn().Err(err).
			Str("event_id", ev.ID.String()).
			Int("attempt", attempt).
			Msg("reconcile attempt failed")

		if attempt < r.cfg.MaxAttempts && delay > 0 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return r.failed(ev, r.cfg.MaxAttempts, lastErr)
}

func (r *Reconciler) failed(ev model.VoteEvent, attempts int, err error) error {
	rf := &ReconciliationFailedError{
		EventID:  ev.ID,
		EntityID: ev.EntityID,
		Attempts: attempts,
		Err:      err,
	}
	log.Error().Err(err).
		Str("event_id", ev.ID.String()).
		Str("entity_id", ev.EntityID.String()).
		Int("attempts", attempts).
		Msg("vote counter reconciliation failed")
	r.metrics.RecordReconcile("failed")
	return rf
}

// Sweep applies every event still missing from its entity counter, batch rows
// at a time, and returns how many it applied. An event that cannot be applied
// is skipped for the rest of the pass; the failures are returned joined.
func (r *Reconciler) Sweep(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	total := 0
	failed := make(map[uuid.UUID]error)
	for {
		if err := ctx.Err(); err != nil {
			return total, errors.Join(append(joinable(failed), err)...)
		}
		// widen the window so skipped events cannot starve the ones behind them
		limit := batch + len(failed)
		events, err := r.store.UnappliedVotes(ctx, limit)
		if err != nil {
			return total, errors.Join(append(joinable(failed), fmt.Errorf("listing unapplied votes: %w", err))...)
		}
		attempted := 0
		for _, ev := range events {
			if _, skip := failed[ev.ID]; skip {
				continue
			}
			attempted++
			if err := r.Apply(ctx, ev); err != nil {
				failed[ev.ID] = err
				continue
			}
			total++
		}
		if attempted == 0 || len(events) < limit {
			return total, errors.Join(joinable(failed)...)
		}
	}
}

func joinable(failed map[uuid.UUID]error) []error {
	errs := make([]error, 0, len(failed)+1)
	for _, err := range failed {
		errs = append(errs, err)
	}
	return errs
}

// Drift describes how far an entity counter is from its ledger.
type Drift struct {
	EntityID  uuid.UUID `json:"entity_id"`
	VoteCount int64     `json:"vote_count"`
	Expected  int64     `json:"expected"`
	Pending   int64     `json:"pending"`
}

// Consistent is true when the counter matches the applied events.
func (d Drift) Consistent() bool {
	return d.VoteCount == d.Expected
}

// Verify compares an entity's counter with the sum of its applied events.
func (r *Reconciler) Verify(ctx context.Context, entityID uuid.UUID) (Drift, error) {
	entity, err := r.store.GetEntity(ctx, entityID)
	if err != nil {
		return Drift{}, err
	}
	applied, pending, err := r.store.SumEffects(ctx, entityID)
	if err != nil {
		return Drift{}, fmt.Errorf("summing effects: %w", err)
	}
	return Drift{
		EntityID:  entityID,
		VoteCount: entity.VoteCount,
		Expected:  entity.BaseCount + applied,
		Pending:   pending,
	}, nil
}

// Run sweeps on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx, batch)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Int("applied", n).Msg("reconcile sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("applied", n).Msg("reconcile sweep applied pending votes")
			}
		}
	}
}

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

const DefaultDailyCap = 5

type Status string

const (
	StatusGranted            Status = "granted"
	StatusAlreadyVoted       Status = "already_voted"
	StatusNeedsShare         Status = "needs_share"
	StatusPreconditionFailed Status = "precondition_failed"
)

// Outcome is the result of a vote attempt. Refusals are outcomes, not errors.
type Outcome struct {
	Status     Status
	Reason     string
	Remaining  int
	NeedsShare bool
	ViaGrant   bool
	Degraded   bool
	VoteCount  int64
	Event      *model.VoteEvent
}

func (o Outcome) Granted() bool {
	return o.Status == StatusGranted
}

// Notifier is told about every accepted vote. Implementations must not block.
type Notifier interface {
	VoteOccurred(ctx context.Context, n model.VoteNotice) error
}

type QuotaConfig struct {
	DailyCap int
	Location *time.Location
}

type Engine struct {
	store      Store
	reconciler *Reconciler
	notifier   Notifier
	metrics    Recorder
	clock      Clock
	ids        IDGenerator
	cfg        QuotaConfig
}

type EngineOption func(*Engine)

func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.metrics = r }
}

func NewEngine(store Store, reconciler *Reconciler, cfg QuotaConfig, opts ...EngineOption) *Engine {
	if cfg.DailyCap < 0 {
		cfg.DailyCap = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	e := &Engine{
		store:      store,
		reconciler: reconciler,
		metrics:    nopRecorder{},
		clock:      RealClock{},
		ids:        UUIDGenerator{},
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TryVote decides whether actor may cast a vote of kind on entityID today and
// records it if so. Concurrent attempts for the same slot race on the store's
// unique constraints; exactly one wins.
func (e *Engine) TryVote(ctx context.Context, actorID, entityID uuid.UUID, kind model.VoteKind) (Outcome, error) {
	if !kind.Valid() {
		return Outcome{}, ErrInvalidKind
	}
	entity, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return Outcome{}, err
	}

	now := e.clock.Now()
	day := DayOf(now, e.cfg.Location)

	if kind == model.DownVote {
		net, err := e.store.NetEffect(ctx, actorID, entityID)
		if err != nil {
			return Outcome{}, fmt.Errorf("reading net effect: %w", err)
		}
		if net <= 0 {
			return e.nothingToRetract(kind), nil
		}
	}

	voted, err := e.store.HasVoted(ctx, actorID, entityID, kind, day)
	if err != nil {
		return Outcome{}, fmt.Errorf("checking base slot: %w", err)
	}
	if !voted {
		ev, err := e.store.AppendVote(ctx, e.newEvent(actorID, entityID, kind, day, 0, now))
		switch {
		case err == nil:
			return e.granted(ctx, entity, ev), nil
		case errors.Is(err, ErrNothingToRetract):
			return e.nothingToRetract(kind), nil
		case !errors.Is(err, ErrConflict):
			return Outcome{}, fmt.Errorf("appending vote: %w", err)
		}
		// lost the race for the base slot; a grant may still cover it
	}

	grants, err := e.store.UnconsumedGrants(ctx, actorID, kind, day)
	if err != nil {
		return Outcome{}, fmt.Errorf("listing grants: %w", err)
	}
	for _, g := range grants {
		ev, err := e.store.AppendVote(ctx, e.newEvent(actorID, entityID, kind, day, g.Seq, now))
		if err == nil {
			return e.granted(ctx, entity, ev), nil
		}
		if errors.Is(err, ErrNothingToRetract) {
			return e.nothingToRetract(kind), nil
		}
		if !errors.Is(err, ErrConflict) {
			return Outcome{}, fmt.Errorf("consuming grant %d: %w", g.Seq, err)
		}
	}

	return e.alreadyVoted(ctx, actorID, kind, day)
}

func (e *Engine) newEvent(actorID, entityID uuid.UUID, kind model.VoteKind, day string, seq int, now time.Time) model.VoteEvent {
	return model.VoteEvent{
		ID:        e.ids.New(),
		ActorID:   actorID,
		EntityID:  entityID,
		Kind:      kind,
		Effect:    kind.Effect(),
		Day:       day,
		GrantSeq:  seq,
		CreatedAt: now.UTC(),
	}
}

func (e *Engine) granted(ctx context.Context, entity model.Entity, ev model.VoteEvent) Outcome {
	out := Outcome{
		Status:   StatusGranted,
		ViaGrant: ev.ViaGrant(),
		Event:    &ev,
	}

	if err := e.reconciler.Apply(ctx, ev); err != nil {
		out.Degraded = true
		out.Reason = "vote recorded; the counter will catch up shortly"
		out.VoteCount = entity.VoteCount
	} else if updated, err := e.store.GetEntity(ctx, entity.ID); err == nil {
		out.VoteCount = updated.VoteCount
	} else {
		out.VoteCount = entity.VoteCount + int64(ev.Effect)
	}

	if e.notifier != nil {
		notice := model.VoteNotice{
			OwnerID:   entity.OwnerID,
			ActorID:   ev.ActorID,
			EntityID:  ev.EntityID,
			EventID:   ev.ID,
			Kind:      ev.Kind,
			Effect:    ev.Effect,
			VoteCount: out.VoteCount,
			At:        ev.CreatedAt,
		}
		if err := e.notifier.VoteOccurred(ctx, notice); err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID.String()).Msg("vote notification failed")
		}
	}

	e.metrics.RecordVote(string(ev.Kind), string(out.Status))
	return out
}

func (e *Engine) alreadyVoted(ctx context.Context, actorID uuid.UUID, kind model.VoteKind, day string) (Outcome, error) {
	issued, err := e.store.CountGrants(ctx, actorID, kind, day)
	if err != nil {
		return Outcome{}, fmt.Errorf("counting grants: %w", err)
	}
	remaining := e.cfg.DailyCap - issued
	if remaining < 0 {
		remaining = 0
	}

	out := Outcome{
		Status:     StatusAlreadyVoted,
		Remaining:  remaining,
		NeedsShare: remaining > 0,
	}
	switch {
	case remaining == 0:
		out.Reason = fmt.Sprintf("you have used today's %s and all %d share unlocks; voting resets at midnight", kind, e.cfg.DailyCap)
	case issued > 0:
		out.Status = StatusNeedsShare
		out.Reason = fmt.Sprintf("share again to unlock another %s (%d unlocks left today)", kind, remaining)
	default:
		out.Reason = fmt.Sprintf("you already used today's %s; share to unlock another (%d unlocks left today)", kind, remaining)
	}
	return e.refuse(kind, out), nil
}

// nothingToRetract refuses a down-vote the actor has no support left for.
// The store re-checks this atomically on insert.
func (e *Engine) nothingToRetract(kind model.VoteKind) Outcome {
	return e.refuse(kind, Outcome{
		Status: StatusPreconditionFailed,
		Reason: "no prior vote to retract",
	})
}

func (e *Engine) refuse(kind model.VoteKind, out Outcome) Outcome {
	e.metrics.RecordVote(string(kind), string(out.Status))
	return out
}

// Status reports today's share-unlock standing for actor and kind.
func (e *Engine) Status(ctx context.Context, actorID uuid.UUID, kind model.VoteKind) (model.QuotaStatus, error) {
	if !kind.Valid() {
		return model.QuotaStatus{}, ErrInvalidKind
	}
	now := e.clock.Now()
	day := DayOf(now, e.cfg.Location)

	issued, err := e.store.CountGrants(ctx, actorID, kind, day)
	if err != nil {
		return model.QuotaStatus{}, fmt.Errorf("counting grants: %w", err)
	}
	unconsumed, err := e.store.UnconsumedGrants(ctx, actorID, kind, day)
	if err != nil {
		return model.QuotaStatus{}, fmt.Errorf("listing grants: %w", err)
	}
	remaining := e.cfg.DailyCap - issued
	if remaining < 0 {
		remaining = 0
	}
	return model.QuotaStatus{
		Kind:             kind,
		Day:              day,
		Cap:              e.cfg.DailyCap,
		GrantsIssued:     issued,
		GrantsUnconsumed: len(unconsumed),
		RemainingUnlocks: remaining,
		ResetsAt:         NextMidnight(now, e.cfg.Location),
	}, nil
}

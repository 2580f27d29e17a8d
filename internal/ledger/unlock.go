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

const DefaultUnlockTTL = 15 * time.Minute

// PendingStore holds share-unlock tokens between issue and confirmation.
type PendingStore interface {
	Put(ctx context.Context, p model.PendingUnlock, ttl time.Duration) error
	// Claim consumes a pending token exactly once. It returns ErrAlreadyConfirmed
	// for a token claimed before and ErrExpired for one that is unknown or timed out.
	Claim(ctx context.Context, token string) (model.PendingUnlock, error)
	// Release undoes a Claim whose grant was never written, keeping the token
	// pending for ttl. A non-positive ttl only clears the claim.
	Release(ctx context.Context, p model.PendingUnlock, ttl time.Duration) error
}

type Ticket struct {
	Token     string
	ExpiresAt time.Time
	Remaining int
}

type Confirmation struct {
	Grant          model.ShareRewardGrant
	RemainingToday int
}

type UnlockConfig struct {
	DailyCap int
	TTL      time.Duration
	Location *time.Location
}

// Unlocker runs the share-to-unlock flow: a token is issued, the client
// shares, and confirming the token appends a bonus grant for today.
type Unlocker struct {
	store   Store
	pending PendingStore
	metrics Recorder
	clock   Clock
	ids     IDGenerator
	cfg     UnlockConfig
}

func NewUnlocker(store Store, pending PendingStore, cfg UnlockConfig, opts ...UnlockerOption) *Unlocker {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultUnlockTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	u := &Unlocker{
		store:   store,
		pending: pending,
		metrics: nopRecorder{},
		clock:   RealClock{},
		ids:     UUIDGenerator{},
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type UnlockerOption func(*Unlocker)

func UnlockWithClock(c Clock) UnlockerOption {
	return func(u *Unlocker) { u.clock = c }
}

func UnlockWithIDGenerator(g IDGenerator) UnlockerOption {
	return func(u *Unlocker) { u.ids = g }
}

func UnlockWithRecorder(r Recorder) UnlockerOption {
	return func(u *Unlocker) { u.metrics = r }
}

// RequestUnlock issues a pending share token if the actor still has unlocks
// left for category today.
func (u *Unlocker) RequestUnlock(ctx context.Context, actorID uuid.UUID, category model.VoteKind) (Ticket, error) {
	if !category.Valid() {
		return Ticket{}, ErrInvalidKind
	}
	now := u.clock.Now()
	day := DayOf(now, u.cfg.Location)

	issued, err := u.store.CountGrants(ctx, actorID, category, day)
	if err != nil {
		return Ticket{}, fmt.Errorf("counting grants: %w", err)
	}
	if issued >= u.cfg.DailyCap {
		u.metrics.RecordUnlock(string(category), "exhausted")
		return Ticket{}, u.exhausted(category, now)
	}

	p := model.PendingUnlock{
		Token:    u.ids.New().String(),
		ActorID:  actorID,
		Category: category,
		Day:      day,
		IssuedAt: now.UTC(),
	}
	if err := u.pending.Put(ctx, p, u.cfg.TTL); err != nil {
		return Ticket{}, fmt.Errorf("storing pending unlock: %w", err)
	}
	u.metrics.RecordUnlock(string(category), "requested")

	return Ticket{
		Token:     p.Token,
		ExpiresAt: now.Add(u.cfg.TTL),
		Remaining: u.cfg.DailyCap - issued,
	}, nil
}

// ConfirmShareProof turns actorID's pending token into a grant for the
// current day. The share itself is taken on trust. If no grant could be
// written the token goes back to pending so the client can retry.
func (u *Unlocker) ConfirmShareProof(ctx context.Context, actorID uuid.UUID, token string) (Confirmation, error) {
	p, err := u.pending.Claim(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyConfirmed):
			u.metrics.RecordUnlock("", "duplicate")
		case errors.Is(err, ErrExpired):
			u.metrics.RecordUnlock("", "expired")
		}
		return Confirmation{}, err
	}

	now := u.clock.Now()
	if p.ActorID != actorID {
		u.release(ctx, p, now)
		return Confirmation{}, ErrNotOwner
	}

	c, err := u.grant(ctx, p, now)
	if err != nil && !errors.Is(err, ErrAlreadyConfirmed) && !IsQuotaExhausted(err) {
		u.release(ctx, p, now)
	}
	return c, err
}

func (u *Unlocker) grant(ctx context.Context, p model.PendingUnlock, now time.Time) (Confirmation, error) {
	day := DayOf(now, u.cfg.Location)

	lastCount := -1
	for attempt := 0; attempt <= u.cfg.DailyCap; attempt++ {
		issued, err := u.store.CountGrants(ctx, p.ActorID, p.Category, day)
		if err != nil {
			return Confirmation{}, fmt.Errorf("counting grants: %w", err)
		}
		if issued >= u.cfg.DailyCap {
			u.metrics.RecordUnlock(string(p.Category), "exhausted")
			return Confirmation{}, u.exhausted(p.Category, now)
		}
		if issued == lastCount {
			// the previous conflict was not on seq, so the token already produced a grant
			return Confirmation{}, ErrAlreadyConfirmed
		}
		lastCount = issued

		g, err := u.store.AppendGrant(ctx, model.ShareRewardGrant{
			ID:        u.ids.New(),
			ActorID:   p.ActorID,
			Category:  p.Category,
			Day:       day,
			Seq:       issued + 1,
			Token:     p.Token,
			CreatedAt: now.UTC(),
		})
		if err == nil {
			u.metrics.RecordUnlock(string(p.Category), "granted")
			log.Info().
				Str("actor_id", p.ActorID.String()).
				Str("category", string(p.Category)).
				Int("seq", g.Seq).
				Msg("share unlock granted")
			return Confirmation{Grant: g, RemainingToday: u.cfg.DailyCap - g.Seq}, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Confirmation{}, fmt.Errorf("appending grant: %w", err)
		}
	}
	return Confirmation{}, u.exhausted(p.Category, now)
}

func (u *Unlocker) release(ctx context.Context, p model.PendingUnlock, now time.Time) {
	ttl := p.IssuedAt.Add(u.cfg.TTL).Sub(now)
	if err := u.pending.Release(context.WithoutCancel(ctx), p, ttl); err != nil {
		log.Error().Err(err).Str("actor_id", p.ActorID.String()).Msg("releasing share unlock token")
	}
}

func (u *Unlocker) exhausted(category model.VoteKind, now time.Time) error {
	return &QuotaExhaustedError{
		Cap:      u.cfg.DailyCap,
		Category: category,
		ResetsAt: NextMidnight(now, u.cfg.Location),
	}
}

package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/bwise1/voteledger/internal/model"
)

// Store is the append-only ledger. Uniqueness of vote slots and grant
// sequence numbers is enforced by the store itself; writers that collide get
// ErrConflict and nothing is written.
type Store interface {
	// AppendVote writes ev. A negative event is written only if the actor's
	// net effect on the entity stays at or above zero, checked atomically with
	// the insert; otherwise it returns ErrNothingToRetract.
	AppendVote(ctx context.Context, ev model.VoteEvent) (model.VoteEvent, error)
	AppendGrant(ctx context.Context, g model.ShareRewardGrant) (model.ShareRewardGrant, error)

	CountGrants(ctx context.Context, actorID uuid.UUID, category model.VoteKind, day string) (int, error)
	// UnconsumedGrants returns the day's grants with no consuming vote, lowest seq first.
	UnconsumedGrants(ctx context.Context, actorID uuid.UUID, category model.VoteKind, day string) ([]model.ShareRewardGrant, error)
	// HasVoted reports whether the base daily slot for (actor, entity, kind, day) is used.
	HasVoted(ctx context.Context, actorID, entityID uuid.UUID, kind model.VoteKind, day string) (bool, error)
	NetEffect(ctx context.Context, actorID, entityID uuid.UUID) (int, error)

	// ApplyVote marks the event applied and adds its effect to the entity
	// counter in one transaction. It returns false when the event was already
	// applied.
	ApplyVote(ctx context.Context, eventID uuid.UUID) (bool, error)
	UnappliedVotes(ctx context.Context, limit int) ([]model.VoteEvent, error)
	// SumEffects returns the summed effect of applied and unapplied events for an entity.
	SumEffects(ctx context.Context, entityID uuid.UUID) (applied int64, pending int64, err error)

	CreateEntity(ctx context.Context, e model.Entity) (model.Entity, error)
	GetEntity(ctx context.Context, id uuid.UUID) (model.Entity, error)
	ListEntities(ctx context.Context, limit, offset int) ([]model.Entity, error)
	ListVotes(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]model.VoteEvent, error)

	Close() error
}

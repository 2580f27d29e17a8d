package model

import (
	"time"

	"github.com/google/uuid"
)

type VoteKind string

const (
	FreeVote VoteKind = "free-vote"
	DownVote VoteKind = "down-vote"
)

// VoteKinds lists every kind the ledger accepts.
var VoteKinds = []VoteKind{FreeVote, DownVote}

func (k VoteKind) Valid() bool {
	switch k {
	case FreeVote, DownVote:
		return true
	}
	return false
}

// Effect is the signed delta a vote of this kind applies to an entity's count.
func (k VoteKind) Effect() int {
	if k == DownVote {
		return -1
	}
	return 1
}

func (k VoteKind) String() string {
	return string(k)
}

// VoteEvent is an immutable ledger row. AppliedAt is the only field that
// changes after insert and it changes once.
type VoteEvent struct {
	ID        uuid.UUID  `json:"id"`
	ActorID   uuid.UUID  `json:"actor_id"`
	EntityID  uuid.UUID  `json:"entity_id"`
	Kind      VoteKind   `json:"kind"`
	Effect    int        `json:"effect"`
	Day       string     `json:"day"`
	GrantSeq  int        `json:"grant_seq"`
	CreatedAt time.Time  `json:"created_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// ViaGrant reports whether the event consumed a share reward grant.
func (e VoteEvent) ViaGrant() bool {
	return e.GrantSeq > 0
}

type CastVoteRequest struct {
	Kind VoteKind `json:"kind" validate:"required,votekind"`
}

type VoteResponse struct {
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Remaining  int        `json:"remaining"`
	NeedsShare bool       `json:"needs_share"`
	ViaGrant   bool       `json:"via_grant"`
	Degraded   bool       `json:"degraded"`
	VoteCount  int64      `json:"vote_count"`
	Event      *VoteEvent `json:"event,omitempty"`
}

// VoteNotice is what the notification side learns about an accepted vote.
type VoteNotice struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	ActorID   uuid.UUID `json:"actor_id"`
	EntityID  uuid.UUID `json:"entity_id"`
	EventID   uuid.UUID `json:"event_id"`
	Kind      VoteKind  `json:"kind"`
	Effect    int       `json:"effect"`
	VoteCount int64     `json:"vote_count"`
	At        time.Time `json:"at"`
}

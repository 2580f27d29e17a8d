package model

import (
	"time"

	"github.com/google/uuid"
)

// ShareRewardGrant is one unit of bonus quota for a category on a day.
type ShareRewardGrant struct {
	ID        uuid.UUID `json:"id"`
	ActorID   uuid.UUID `json:"actor_id"`
	Category  VoteKind  `json:"category"`
	Day       string    `json:"day"`
	Seq       int       `json:"seq"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingUnlock lives outside the ledger until its proof is confirmed or it expires.
type PendingUnlock struct {
	Token    string    `json:"token"`
	ActorID  uuid.UUID `json:"actor_id"`
	Category VoteKind  `json:"category"`
	Day      string    `json:"day"`
	IssuedAt time.Time `json:"issued_at"`
}

type ShareUnlockRequest struct {
	Category VoteKind `json:"category" validate:"required,votekind"`
}

type ShareUnlockResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Remaining int       `json:"remaining"`
}

type ConfirmShareResponse struct {
	Grant          ShareRewardGrant `json:"grant"`
	RemainingToday int              `json:"remaining_today"`
}

type QuotaStatus struct {
	Kind             VoteKind  `json:"kind"`
	Day              string    `json:"day"`
	Cap              int       `json:"cap"`
	GrantsIssued     int       `json:"grants_issued"`
	GrantsUnconsumed int       `json:"grants_unconsumed"`
	RemainingUnlocks int       `json:"remaining_unlocks"`
	ResetsAt         time.Time `json:"resets_at"`
}

package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bwise1/voteledger/internal/model"
)

var (
	// ErrConflict is returned by a Store when a write collides with a
	// uniqueness constraint.
	ErrConflict = errors.New("ledger: record conflicts with an existing one")
	ErrNotFound = errors.New("ledger: not found")
	// ErrNothingToRetract is returned by a Store when appending a negative
	// event would take the actor's net effect on the entity below zero.
	ErrNothingToRetract = errors.New("ledger: no prior vote to retract")

	ErrAlreadyConfirmed = errors.New("share unlock already confirmed")
	ErrExpired          = errors.New("share unlock token expired or unknown")
	ErrNotOwner         = errors.New("share unlock belongs to another actor")
	ErrInvalidKind      = errors.New("invalid vote kind")
)

// QuotaExhaustedError is returned when an actor has used every share unlock
// for a category today.
type QuotaExhaustedError struct {
	Cap      int
	Category model.VoteKind
	ResetsAt time.Time
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("daily share limit of %d reached for %s; the limit resets at midnight (%s)",
		e.Cap, e.Category, e.ResetsAt.Format(time.RFC3339))
}

// ReconciliationFailedError means an event is recorded but its delta could not
// be applied to the entity counter. The sweeper picks it up later.
type ReconciliationFailedError struct {
	EventID  uuid.UUID
	EntityID uuid.UUID
	Attempts int
	Err      error
}

func (e *ReconciliationFailedError) Error() string {
	return fmt.Sprintf("reconciliation of event %s on entity %s failed after %d attempts: %v",
		e.EventID, e.EntityID, e.Attempts, e.Err)
}

func (e *ReconciliationFailedError) Unwrap() error {
	return e.Err
}

// IsQuotaExhausted reports whether err carries a QuotaExhaustedError.
func IsQuotaExhausted(err error) bool {
	var qe *QuotaExhaustedError
	return errors.As(err, &qe)
}

func IsReconciliationFailed(err error) bool {
	var re *ReconciliationFailedError
	return errors.As(err, &re)
}

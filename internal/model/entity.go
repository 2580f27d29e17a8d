package model

import (
	"time"

	"github.com/google/uuid"
)

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// TrendFor returns the trend after applying effect on top of current.
func TrendFor(current Trend, effect int) Trend {
	switch {
	case effect > 0:
		return TrendUp
	case effect < 0:
		return TrendDown
	default:
		return current
	}
}

type Entity struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	OwnerID     uuid.UUID     `json:"owner_id"`
	BaseCount   int64         `json:"base_count"`
	VoteCount   int64         `json:"vote_count"`
	Trend       Trend         `json:"trend"`
	LastEventID uuid.NullUUID `json:"last_event_id"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type CreateEntityRequest struct {
	Name      string    `json:"name" validate:"required,min=1,max=120"`
	BaseCount int64     `json:"base_count" validate:"gte=0"`
	OwnerID   uuid.UUID `json:"-"`
}

type VotePage struct {
	EntityID uuid.UUID   `json:"entity_id"`
	Votes    []VoteEvent `json:"votes"`
	Limit    int         `json:"limit"`
	Offset   int         `json:"offset"`
}

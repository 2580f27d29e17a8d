package ledger

import (
	"time"

	"github.com/google/uuid"
)

const dayLayout = "2006-01-02"

// Clock is the time source for day windows and token expiry.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator produces ids for events, grants and unlock tokens.
type IDGenerator interface {
	New() uuid.UUID
}

type UUIDGenerator struct{}

func (UUIDGenerator) New() uuid.UUID { return uuid.New() }

// DayOf returns the calendar day t falls on in loc, formatted YYYY-MM-DD.
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(dayLayout)
}

// NextMidnight returns the start of the day following t in loc.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

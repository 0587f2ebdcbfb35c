package periods

import "time"

// PeriodStatus enumerates valid fiscal period states.
type PeriodStatus string

const (
	StatusOpen   PeriodStatus = "OPEN"
	StatusClosed PeriodStatus = "CLOSED"
	StatusLocked PeriodStatus = "LOCKED"
)

// Period represents a fiscal period window.
type Period struct {
	ID        int64
	CompanyID int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Status    PeriodStatus
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether the date falls inside the period window.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}

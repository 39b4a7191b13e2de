package participation

import (
	"time"

	"github.com/google/uuid"

	"github.com/gravadigital/eventhub-api/internal/domain/user"
)

// Status is the state of a user's enrollment in an event
type Status string

const (
	StatusRegistered Status = "registered"
	// StatusAttended is stored but no operation sets it yet.
	StatusAttended  Status = "attended"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known participation status
func (s Status) Valid() bool {
	switch s {
	case StatusRegistered, StatusAttended, StatusCancelled:
		return true
	}
	return false
}

// Participation links a user to an event
type Participation struct {
	ID           string     `json:"id"`
	EventID      string     `json:"event_id"`
	UserID       string     `json:"user_id"`
	Status       Status     `json:"status"`
	RegisteredAt time.Time  `json:"registered_at"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	// User is filled by listing queries when the user is known.
	User *user.User `json:"user,omitempty"`
}

// New creates a registered participation stamped with the current time
func New(eventID, userID string) *Participation {
	return &Participation{
		ID:           uuid.NewString(),
		EventID:      eventID,
		UserID:       userID,
		Status:       StatusRegistered,
		RegisteredAt: time.Now().UTC(),
	}
}

// IsActive reports whether the participation still holds a seat
func (p *Participation) IsActive() bool {
	return p.Status == StatusRegistered
}

// Cancel marks the participation withdrawn at the given time
func (p *Participation) Cancel(at time.Time) {
	p.Status = StatusCancelled
	p.CancelledAt = &at
}

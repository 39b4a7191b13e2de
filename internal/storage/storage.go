// Package storage defines the persistence contract of the event core.
// Adapters live in the memory, sqlite and postgres subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/domain/participation"
	"github.com/gravadigital/eventhub-api/internal/domain/user"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyExists is returned when a write would break a uniqueness rule.
	ErrAlreadyExists = errors.New("storage: already exists")
	// ErrLimitReached is returned when a conditional increment is rejected.
	ErrLimitReached = errors.New("storage: limit reached")
	// ErrInUse is returned when a record is still referenced: an event with
	// registered participants, or a user who organizes or joined events.
	ErrInUse = errors.New("storage: in use")
	// ErrStale is returned when a conditional write finds the record changed.
	ErrStale = errors.New("storage: stale")
)

// EventStore persists events and owns the participant counter.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (*event.Event, error)
	// SaveEvent inserts or updates an event. Updates never write the counter
	// or the status and fail with ErrLimitReached when the new capacity is
	// below the counter.
	SaveEvent(ctx context.Context, e *event.Event) error
	// UpdateEventStatus writes to only when the stored status is still from.
	// ErrStale otherwise.
	UpdateEventStatus(ctx context.Context, id string, from, to event.Status, at time.Time) error
	// DeleteEvent removes an event whose counter is zero, with its
	// participation history.
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, filter event.Filter) ([]*event.Event, error)

	// IncrementIfBelow raises the counter by one when it is below limit and
	// below the stored capacity, and returns the new value.
	IncrementIfBelow(ctx context.Context, eventID string, limit int) (int, error)
	// DecrementFloor lowers the counter by one, never below floor, and
	// returns the new value.
	DecrementFloor(ctx context.Context, eventID string, floor int) (int, error)
}

// ParticipationStore persists enrollments.
type ParticipationStore interface {
	GetActiveParticipation(ctx context.Context, eventID, userID string) (*participation.Participation, error)
	SaveParticipation(ctx context.Context, p *participation.Participation) error
	// CancelParticipation marks a registered participation cancelled and
	// releases its seat in the same write, returning the new counter.
	// ErrNotFound when it is absent or no longer registered.
	CancelParticipation(ctx context.Context, id string, at time.Time) (int, error)
	// DeleteParticipation removes a registered participation and releases
	// its seat in the same write, returning the new counter.
	// ErrNotFound when it is absent or no longer registered.
	DeleteParticipation(ctx context.Context, id string) (int, error)
	ListParticipationsByEvent(ctx context.Context, eventID string) ([]*participation.Participation, error)
}

// Store is the contract consumed by the lifecycle and enrollment engines.
type Store interface {
	EventStore
	ParticipationStore
}

// UserStore persists the user registry.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	// SaveUser inserts or updates a user. ErrAlreadyExists when the email
	// belongs to another user.
	SaveUser(ctx context.Context, u *user.User) error
	// DeleteUser removes a user. ErrInUse while the user organizes an event
	// or has participations.
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*user.User, error)
}

// Backend is a complete adapter as opened by the factory.
type Backend interface {
	Store
	UserStore
	Health(ctx context.Context) error
	Close() error
}

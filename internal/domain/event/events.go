package event

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event represents a scheduled activity with a bounded participant capacity
type Event struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	Location            string    `json:"location"`
	Date                time.Time `json:"date"`
	MaxParticipants     int       `json:"max_participants"`
	CurrentParticipants int       `json:"current_participants"`
	Status              Status    `json:"status"`
	OrganizerID         string    `json:"organizer_id"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Fields holds the caller-supplied attributes of a new event
type Fields struct {
	Title           string
	Description     string
	Location        string
	Date            time.Time
	MaxParticipants int
}

// NewEvent creates a draft event owned by organizerID
func NewEvent(fields Fields, organizerID string) *Event {
	now := time.Now().UTC()
	return &Event{
		ID:                  uuid.NewString(),
		Title:               strings.TrimSpace(fields.Title),
		Description:         fields.Description,
		Location:            strings.TrimSpace(fields.Location),
		Date:                fields.Date,
		MaxParticipants:     fields.MaxParticipants,
		CurrentParticipants: 0,
		Status:              StatusDraft,
		OrganizerID:         organizerID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// IsOrganizer checks if the given user ID owns this event
func (e *Event) IsOrganizer(userID string) bool {
	return e.OrganizerID == userID
}

// IsFull reports whether every seat is taken
func (e *Event) IsFull() bool {
	return e.CurrentParticipants >= e.MaxParticipants
}

// AcceptsRegistrations reports whether participants may enroll
func (e *Event) AcceptsRegistrations() bool {
	return e.Status == StatusPublished
}

// CanTransitionTo checks if the event can move to a new status
func (e *Event) CanTransitionTo(next Status) bool {
	return CanTransition(e.Status, next)
}

// UpdateStatus updates the status if the transition is valid
func (e *Event) UpdateStatus(next Status) error {
	if !e.CanTransitionTo(next) {
		return fmt.Errorf("cannot transition from %s to %s", e.Status, next)
	}
	e.Status = next
	return nil
}

// Validate checks if the event data is valid
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if strings.TrimSpace(e.Location) == "" {
		return fmt.Errorf("location is required")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if e.MaxParticipants < 1 {
		return fmt.Errorf("max_participants must be at least 1")
	}
	if e.CurrentParticipants < 0 || e.CurrentParticipants > e.MaxParticipants {
		return fmt.Errorf("current_participants must be between 0 and max_participants")
	}
	if e.OrganizerID == "" {
		return fmt.Errorf("organizer_id is required")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("invalid status: %s", e.Status)
	}
	return nil
}

// Patch is a partial update; nil fields are left untouched
type Patch struct {
	Title           *string
	Description     *string
	Location        *string
	Date            *time.Time
	MaxParticipants *int
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil && p.Date == nil && p.MaxParticipants == nil
}

// Apply copies the set fields onto e. Status, counter and organizer are never touched.
func (p Patch) Apply(e *Event) {
	if p.Title != nil {
		e.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Location != nil {
		e.Location = strings.TrimSpace(*p.Location)
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.MaxParticipants != nil {
		e.MaxParticipants = *p.MaxParticipants
	}
}

// Filter narrows an event listing; zero values match everything
type Filter struct {
	Search   string
	Location string
	Status   *Status
	DateFrom *time.Time
	DateTo   *time.Time
}

// Matches reports whether e satisfies the filter. Text matching is case-insensitive.
func (f Filter) Matches(e *Event) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Title), needle) &&
			!strings.Contains(strings.ToLower(e.Description), needle) {
			return false
		}
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(e.Location), strings.ToLower(f.Location)) {
		return false
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.DateFrom != nil && e.Date.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && e.Date.After(*f.DateTo) {
		return false
	}
	return true
}

// Status represents the lifecycle state of an event
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusPublished, StatusCancelled},
	StatusPublished: {StatusCancelled, StatusCompleted},
	StatusCancelled: {}, // NOTE: terminal
	StatusCompleted: {}, // NOTE: terminal
}

// CanTransition reports whether from -> to is an edge of the status table
func CanTransition(from, to Status) bool {
	allowed, exists := transitions[from]
	if !exists {
		return false
	}
	return slices.Contains(allowed, to)
}

// AllowedTransitions returns the statuses reachable from s
func AllowedTransitions(s Status) []Status {
	return slices.Clone(transitions[s])
}

// IsTerminal reports whether no transition leaves s
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// StatusFromString converts a string to a Status
func StatusFromString(s string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", false
	}
	return status, true
}

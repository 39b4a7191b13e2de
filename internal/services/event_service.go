package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	apperrors "github.com/gravadigital/eventhub-api/internal/errors"
	"github.com/gravadigital/eventhub-api/internal/logger"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/validation"
)

// EventService owns the event lifecycle: creation, edits, removal and
// status transitions.
type EventService struct {
	store     storage.Store
	users     storage.UserStore
	validator validation.EventValidation
	log       *log.Logger
}

// NewEventService creates a new event service
func NewEventService(store storage.Store, users storage.UserStore) *EventService {
	return &EventService{
		store:     store,
		users:     users,
		validator: validation.EventValidation{},
		log:       logger.Service("event"),
	}
}

// Create stores a new draft event owned by organizerID
func (s *EventService) Create(ctx context.Context, fields event.Fields, organizerID string) (*event.Event, error) {
	if err := s.validator.ValidateFields(fields); err != nil {
		s.log.Debug("create rejected", "reason", err)
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid event", err)
	}

	if _, err := s.users.GetUser(ctx, organizerID); err != nil {
		return nil, notFoundOr(s.log, "get organizer", err, userNotFound(organizerID), "user_id", organizerID)
	}

	e := event.NewEvent(fields, organizerID)
	if err := s.store.SaveEvent(ctx, e); err != nil {
		return nil, storageFailure(s.log, "save event", err, "event_id", e.ID)
	}

	s.log.Info("event created", "event_id", e.ID, "organizer_id", organizerID, "max_participants", e.MaxParticipants)
	return e, nil
}

// Get returns a single event
func (s *EventService) Get(ctx context.Context, eventID string) (*event.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, notFoundOr(s.log, "get event", err, eventNotFound(eventID), "event_id", eventID)
	}
	return e, nil
}

// List returns the events matching filter ordered by date
func (s *EventService) List(ctx context.Context, filter event.Filter) ([]*event.Event, error) {
	if err := s.validator.ValidateFilter(filter); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid filter", err)
	}

	events, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, storageFailure(s.log, "list events", err)
	}
	return events, nil
}

// Update applies a partial update. Status and the participant counter are
// never changed here.
func (s *EventService) Update(ctx context.Context, eventID string, patch event.Patch) (*event.Event, error) {
	if err := s.validator.ValidatePatch(patch); err != nil {
		s.log.Debug("update rejected", "event_id", eventID, "reason", err)
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid event update", err)
	}

	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, notFoundOr(s.log, "get event", err, eventNotFound(eventID), "event_id", eventID)
	}

	if patch.MaxParticipants != nil && *patch.MaxParticipants < e.CurrentParticipants {
		s.log.Debug("capacity below registered", "event_id", eventID,
			"requested", *patch.MaxParticipants, "current", e.CurrentParticipants)
		return nil, capacityBelowRegistered(eventID, *patch.MaxParticipants, e.CurrentParticipants)
	}

	patch.Apply(e)
	e.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveEvent(ctx, e); err != nil {
		switch {
		case errors.Is(err, storage.ErrLimitReached):
			// a registration landed between the read and the write
			current := e.CurrentParticipants
			if fresh, getErr := s.store.GetEvent(ctx, eventID); getErr == nil {
				current = fresh.CurrentParticipants
			}
			return nil, capacityBelowRegistered(eventID, e.MaxParticipants, current)
		case errors.Is(err, storage.ErrNotFound):
			return nil, eventNotFound(eventID)
		}
		return nil, storageFailure(s.log, "save event", err, "event_id", eventID)
	}

	s.log.Info("event updated", "event_id", eventID)
	return s.reload(ctx, e)
}

// Remove deletes an event that has no registered participants
func (s *EventService) Remove(ctx context.Context, eventID string) error {
	err := s.store.DeleteEvent(ctx, eventID)
	switch {
	case err == nil:
		s.log.Info("event removed", "event_id", eventID)
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return eventNotFound(eventID)
	case errors.Is(err, storage.ErrInUse):
		s.log.Debug("remove rejected", "event_id", eventID, "reason", "has participants")
		return apperrors.WithMetadata(apperrors.CodeEventHasParticipants,
			"event still has registered participants", map[string]string{"event_id": eventID})
	default:
		return storageFailure(s.log, "delete event", err, "event_id", eventID)
	}
}

// TransitionStatus moves an event along the status table on behalf of its
// organizer
func (s *EventService) TransitionStatus(ctx context.Context, eventID string, requested event.Status, actingUserID string) (*event.Event, error) {
	if !requested.Valid() {
		return nil, apperrors.Invalid("unknown event status: " + string(requested))
	}

	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, notFoundOr(s.log, "get event", err, eventNotFound(eventID), "event_id", eventID)
	}

	if !e.IsOrganizer(actingUserID) {
		s.log.Debug("transition forbidden", "event_id", eventID, "user_id", actingUserID)
		return nil, apperrors.WithMetadata(apperrors.CodeEventNotOrganizer,
			"only the organizer can change the event status",
			map[string]string{"event_id": eventID, "user_id": actingUserID})
	}

	from := e.Status
	if err := e.UpdateStatus(requested); err != nil {
		s.log.Debug("transition rejected", "event_id", eventID, "from", from, "to", requested)
		return nil, invalidTransition(eventID, from, requested, err)
	}

	err = s.store.UpdateEventStatus(ctx, eventID, from, requested, time.Now().UTC())
	switch {
	case errors.Is(err, storage.ErrStale):
		// another transition won the race
		s.log.Debug("transition rejected", "event_id", eventID, "from", from, "to", requested, "reason", "stale")
		return nil, invalidTransition(eventID, from, requested, err)
	case errors.Is(err, storage.ErrNotFound):
		return nil, eventNotFound(eventID)
	case err != nil:
		return nil, storageFailure(s.log, "update event status", err, "event_id", eventID)
	}

	s.log.Info("event status changed", "event_id", eventID, "from", from, "to", requested)
	return s.reload(ctx, e)
}

// reload refreshes the counter and status, which SaveEvent never writes
func (s *EventService) reload(ctx context.Context, e *event.Event) (*event.Event, error) {
	fresh, err := s.store.GetEvent(ctx, e.ID)
	if err != nil {
		return nil, notFoundOr(s.log, "get event", err, eventNotFound(e.ID), "event_id", e.ID)
	}
	return fresh, nil
}

func eventNotFound(eventID string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeEventNotFound, "event not found", map[string]string{"event_id": eventID})
}

func invalidTransition(eventID string, from, to event.Status, cause error) *apperrors.Error {
	return &apperrors.Error{
		Code:     apperrors.CodeEventInvalidStatusTransition,
		Message:  "invalid status transition",
		Metadata: map[string]string{"event_id": eventID, "from": string(from), "to": string(to)},
		Cause:    cause,
	}
}

func userNotFound(userID string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeUserNotFound, "user not found", map[string]string{"user_id": userID})
}

func capacityBelowRegistered(eventID string, requested, current int) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeEventCapacityBelowRegistered,
		"max participants below registered count", map[string]string{
			"event_id":  eventID,
			"requested": strconv.Itoa(requested),
			"current":   strconv.Itoa(current),
		})
}

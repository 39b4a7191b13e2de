package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gravadigital/eventhub-api/internal/domain/participation"
	apperrors "github.com/gravadigital/eventhub-api/internal/errors"
	"github.com/gravadigital/eventhub-api/internal/logger"
	"github.com/gravadigital/eventhub-api/internal/storage"
)

// EnrollmentService registers and withdraws participants while keeping the
// event counter within capacity.
type EnrollmentService struct {
	store      storage.Store
	users      storage.UserStore
	cancelMode CancelMode
	now        func() time.Time
	log        *log.Logger
}

// EnrollmentOption configures an EnrollmentService
type EnrollmentOption func(*EnrollmentService)

// WithCancelMode selects soft or hard withdrawal
func WithCancelMode(mode CancelMode) EnrollmentOption {
	return func(s *EnrollmentService) {
		s.cancelMode = mode
	}
}

// WithClock overrides the time source used for cancellation stamps
func WithClock(now func() time.Time) EnrollmentOption {
	return func(s *EnrollmentService) {
		s.now = now
	}
}

// NewEnrollmentService creates a new enrollment service. Withdrawals are
// soft unless WithCancelMode says otherwise.
func NewEnrollmentService(store storage.Store, users storage.UserStore, opts ...EnrollmentOption) *EnrollmentService {
	s := &EnrollmentService{
		store:      store,
		users:      users,
		cancelMode: CancelSoft,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.Service("enrollment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CancelMode reports the configured withdrawal mode
func (s *EnrollmentService) CancelMode() CancelMode {
	return s.cancelMode
}

// Register enrolls userID in a published event with a free seat
func (s *EnrollmentService) Register(ctx context.Context, eventID, userID string) (*participation.Participation, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, notFoundOr(s.log, "get event", err, eventNotFound(eventID), "event_id", eventID)
	}

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, notFoundOr(s.log, "get user", err, userNotFound(userID), "user_id", userID)
	}

	if !e.AcceptsRegistrations() {
		s.log.Debug("register rejected", "event_id", eventID, "user_id", userID, "status", e.Status)
		return nil, apperrors.WithMetadata(apperrors.CodeEventNotPublished,
			"cannot participate in an unpublished event",
			map[string]string{"event_id": eventID, "status": string(e.Status)})
	}

	if e.IsFull() {
		s.log.Debug("register rejected", "event_id", eventID, "user_id", userID, "reason", "full")
		return nil, eventFull(eventID, e.MaxParticipants)
	}

	// Concurrent duplicates from one user can both pass this check and hold
	// two seats until the losing insert releases its own. Another user may
	// see EVENT_FULL inside that window; the counter settles on one seat.
	_, err = s.store.GetActiveParticipation(ctx, eventID, userID)
	switch {
	case err == nil:
		s.log.Debug("register rejected", "event_id", eventID, "user_id", userID, "reason", "duplicate")
		return nil, alreadyRegistered(eventID, userID)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, storageFailure(s.log, "get participation", err, "event_id", eventID, "user_id", userID)
	}

	count, err := s.store.IncrementIfBelow(ctx, eventID, e.MaxParticipants)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrLimitReached):
			s.log.Debug("register rejected", "event_id", eventID, "user_id", userID, "reason", "full")
			return nil, eventFull(eventID, e.MaxParticipants)
		case errors.Is(err, storage.ErrNotFound):
			return nil, eventNotFound(eventID)
		}
		return nil, storageFailure(s.log, "increment participants", err, "event_id", eventID)
	}

	p := participation.New(eventID, userID)
	if err := s.store.SaveParticipation(ctx, p); err != nil {
		s.releaseSeat(ctx, eventID)
		if errors.Is(err, storage.ErrAlreadyExists) {
			s.log.Debug("register rejected", "event_id", eventID, "user_id", userID, "reason", "duplicate")
			return nil, alreadyRegistered(eventID, userID)
		}
		return nil, storageFailure(s.log, "save participation", err, "event_id", eventID, "user_id", userID)
	}

	s.log.Info("participant registered", "event_id", eventID, "user_id", userID,
		"participation_id", p.ID, "current_participants", count)
	return p, nil
}

// Cancel withdraws the active participation of userID and frees the seat
func (s *EnrollmentService) Cancel(ctx context.Context, eventID, userID string) error {
	p, err := s.store.GetActiveParticipation(ctx, eventID, userID)
	if err != nil {
		return notFoundOr(s.log, "get participation", err, participationNotFound(eventID, userID),
			"event_id", eventID, "user_id", userID)
	}

	// the store frees the seat in the same write as the withdrawal
	var count int
	if s.cancelMode == CancelHard {
		count, err = s.store.DeleteParticipation(ctx, p.ID)
	} else {
		count, err = s.store.CancelParticipation(ctx, p.ID, s.now())
	}
	if err != nil {
		// a concurrent cancel already withdrew it
		return notFoundOr(s.log, "withdraw participation", err, participationNotFound(eventID, userID),
			"participation_id", p.ID)
	}

	s.log.Info("participant cancelled", "event_id", eventID, "user_id", userID,
		"participation_id", p.ID, "mode", s.cancelMode, "current_participants", count)
	return nil
}

// ListParticipants returns every participation of an event, cancelled
// history included, ordered by registration time
func (s *EnrollmentService) ListParticipants(ctx context.Context, eventID string) ([]*participation.Participation, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, notFoundOr(s.log, "get event", err, eventNotFound(eventID), "event_id", eventID)
	}

	participations, err := s.store.ListParticipationsByEvent(ctx, eventID)
	if err != nil {
		return nil, storageFailure(s.log, "list participations", err, "event_id", eventID)
	}
	return participations, nil
}

// releaseSeat undoes an increment whose participation could not be stored
func (s *EnrollmentService) releaseSeat(ctx context.Context, eventID string) {
	if _, err := s.store.DecrementFloor(context.WithoutCancel(ctx), eventID, 0); err != nil {
		s.log.Error("failed to release seat", "event_id", eventID, "error", err)
	}
}

func eventFull(eventID string, capacity int) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeEventFull, "event is full",
		map[string]string{"event_id": eventID, "max_participants": strconv.Itoa(capacity)})
}

func alreadyRegistered(eventID, userID string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeParticipationAlreadyRegistered,
		"user is already registered for this event",
		map[string]string{"event_id": eventID, "user_id": userID})
}

func participationNotFound(eventID, userID string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeParticipationNotFound, "participation not found",
		map[string]string{"event_id": eventID, "user_id": userID})
}

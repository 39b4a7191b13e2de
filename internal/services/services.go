package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/gravadigital/eventhub-api/internal/config"
	apperrors "github.com/gravadigital/eventhub-api/internal/errors"
	"github.com/gravadigital/eventhub-api/internal/storage"
)

// Services bundles the engines that share one backend
type Services struct {
	Events     *EventService
	Enrollment *EnrollmentService
	Users      *UserService
}

// New wires every service onto backend
func New(backend storage.Backend, opts ...EnrollmentOption) *Services {
	return &Services{
		Events:     NewEventService(backend, backend),
		Enrollment: NewEnrollmentService(backend, backend, opts...),
		Users:      NewUserService(backend),
	}
}

// FromConfig wires every service with the settings in cfg
func FromConfig(backend storage.Backend, cfg *config.Config) (*Services, error) {
	mode, err := ParseCancelMode(cfg.Enrollment.CancelMode)
	if err != nil {
		return nil, err
	}
	return New(backend, WithCancelMode(mode)), nil
}

// CancelMode selects how a withdrawn participation is stored
type CancelMode string

const (
	// CancelSoft keeps the row as cancelled history
	CancelSoft CancelMode = "soft"
	// CancelHard deletes the row
	CancelHard CancelMode = "hard"
)

// ParseCancelMode converts a config value to a CancelMode
func ParseCancelMode(s string) (CancelMode, error) {
	switch mode := CancelMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case CancelSoft, CancelHard:
		return mode, nil
	case "":
		return CancelSoft, nil
	default:
		return "", fmt.Errorf("unknown cancel mode: %s", s)
	}
}

// storageFailure logs and wraps an unexpected store error
func storageFailure(l *log.Logger, op string, err error, keyvals ...any) error {
	l.Error("storage failure", append([]any{"op", op, "error", err}, keyvals...)...)
	return apperrors.Storage(op, err)
}

// notFoundOr maps storage.ErrNotFound to the given not-found error and
// everything else to a storage failure
func notFoundOr(l *log.Logger, op string, err error, notFound *apperrors.Error, keyvals ...any) error {
	if errors.Is(err, storage.ErrNotFound) {
		return notFound
	}
	return storageFailure(l, op, err, keyvals...)
}

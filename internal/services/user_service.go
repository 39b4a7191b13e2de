package services

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/gravadigital/eventhub-api/internal/domain/permission"
	"github.com/gravadigital/eventhub-api/internal/domain/user"
	apperrors "github.com/gravadigital/eventhub-api/internal/errors"
	"github.com/gravadigital/eventhub-api/internal/logger"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/validation"
)

// UserService manages the user registry. Credentials are out of scope.
type UserService struct {
	users     storage.UserStore
	validator validation.UserValidation
	log       *log.Logger
}

// NewUserService creates a new user service
func NewUserService(users storage.UserStore) *UserService {
	return &UserService{
		users:     users,
		validator: validation.UserValidation{},
		log:       logger.Service("user"),
	}
}

// CreateUserRequest holds the input of a new user
type CreateUserRequest struct {
	Email     string
	FirstName string
	LastName  string
	Roles     []permission.Role
}

// Create registers a new user. Without roles the user is a participant.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*user.User, error) {
	err := errors.Join(
		s.validator.ValidateUserEmail(req.Email),
		s.validator.ValidateUserName(req.FirstName, "first_name"),
		s.validator.ValidateUserName(req.LastName, "last_name"),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid user", err)
	}

	u := user.NewUser(req.Email, req.FirstName, req.LastName, req.Roles...)
	if err := u.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid user", err)
	}

	if err := s.users.SaveUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			s.log.Debug("create rejected", "email", u.Email, "reason", "email taken")
			return nil, emailTaken(u.Email)
		}
		return nil, storageFailure(s.log, "save user", err, "email", u.Email)
	}

	s.log.Info("user created", "user_id", u.ID, "email", u.Email, "roles", u.Roles)
	return u, nil
}

// Get returns a single user
func (s *UserService) Get(ctx context.Context, userID string) (*user.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, notFoundOr(s.log, "get user", err, userNotFound(userID), "user_id", userID)
	}
	return u, nil
}

// GetByEmail looks a user up by address, case-insensitively
func (s *UserService) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := s.users.GetUserByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		return nil, notFoundOr(s.log, "get user by email", err,
			apperrors.WithMetadata(apperrors.CodeUserNotFound, "user not found", map[string]string{"email": email}))
	}
	return u, nil
}

// List returns every user ordered by creation time
func (s *UserService) List(ctx context.Context) ([]*user.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, storageFailure(s.log, "list users", err)
	}
	return users, nil
}

// Update applies a partial update. A new role set replaces the old one and
// must hold between one and user.MaxRoles known roles.
func (s *UserService) Update(ctx context.Context, userID string, patch user.Patch) (*user.User, error) {
	if err := s.validator.ValidateUserPatch(patch); err != nil {
		s.log.Debug("update rejected", "user_id", userID, "reason", err)
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid user update", err)
	}

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, notFoundOr(s.log, "get user", err, userNotFound(userID), "user_id", userID)
	}
	if patch.IsEmpty() {
		return u, nil
	}

	patch.Apply(u)
	if err := u.Validate(); err != nil {
		s.log.Debug("update rejected", "user_id", userID, "reason", err)
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid user update", err)
	}

	if err := s.users.SaveUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			s.log.Debug("update rejected", "user_id", userID, "reason", "email taken")
			return nil, emailTaken(u.Email)
		}
		return nil, storageFailure(s.log, "save user", err, "user_id", userID)
	}

	s.log.Info("user updated", "user_id", userID, "email", u.Email, "roles", u.Roles)
	return u, nil
}

// Remove deletes a user that neither organizes an event nor has any
// participation on record
func (s *UserService) Remove(ctx context.Context, userID string) error {
	err := s.users.DeleteUser(ctx, userID)
	switch {
	case err == nil:
		s.log.Info("user removed", "user_id", userID)
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return userNotFound(userID)
	case errors.Is(err, storage.ErrInUse):
		s.log.Debug("remove rejected", "user_id", userID, "reason", "referenced")
		return apperrors.WithMetadata(apperrors.CodeUserInUse,
			"user still organizes events or has participations", map[string]string{"user_id": userID})
	default:
		return storageFailure(s.log, "delete user", err, "user_id", userID)
	}
}

// HasAdmin reports whether any user holds the admin role
func (s *UserService) HasAdmin(ctx context.Context) (bool, error) {
	users, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.IsAdmin() {
			return true, nil
		}
	}
	return false, nil
}

// EnsureAdmin creates an admin with the given identity unless one exists
func (s *UserService) EnsureAdmin(ctx context.Context, req CreateUserRequest) (*user.User, bool, error) {
	ok, err := s.HasAdmin(ctx)
	if err != nil || ok {
		return nil, false, err
	}
	req.Roles = []permission.Role{permission.RoleAdmin}
	u, err := s.Create(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func emailTaken(email string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeUserEmailTaken, "email already registered",
		map[string]string{"email": email})
}

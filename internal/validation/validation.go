package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/domain/user"
)

// ValidateRequired checks that a field is not blank
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(fieldName + " is required")
	}
	return nil
}

// ValidateMinLength checks the minimum rune length of a string
func ValidateMinLength(value string, minLength int, fieldName string) error {
	if utf8.RuneCountInString(value) < minLength {
		return fmt.Errorf("%s must be at least %d characters long", fieldName, minLength)
	}
	return nil
}

// ValidateMaxLength checks the maximum rune length of a string
func ValidateMaxLength(value string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(value) > maxLength {
		return fmt.Errorf("%s must be at most %d characters long", fieldName, maxLength)
	}
	return nil
}

// ValidateUUID checks that a string is a valid UUID
func ValidateUUID(value, fieldName string) error {
	if _, err := uuid.Parse(value); err != nil {
		return errors.New(fieldName + " must be a valid UUID")
	}
	return nil
}

// ValidateEmail checks that the value is a bare address
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email must have a valid format")
	}
	return nil
}

// ValidateDateRange checks that from is not after to. Nil bounds are open.
func ValidateDateRange(from, to *time.Time) error {
	if from != nil && to != nil && from.After(*to) {
		return errors.New("date_from must not be after date_to")
	}
	return nil
}

// ValidateMin checks an integer lower bound
func ValidateMin(value, minValue int, fieldName string) error {
	if value < minValue {
		return fmt.Errorf("%s must be at least %d", fieldName, minValue)
	}
	return nil
}

const (
	maxTitleLength       = 200
	maxDescriptionLength = 5000
	maxLocationLength    = 200
	minNameLength        = 2
	maxNameLength        = 50
)

// EventValidation holds validations for event input
type EventValidation struct{}

// ValidateTitle validates an event title
func (v EventValidation) ValidateTitle(title string) error {
	if err := ValidateRequired(title, "title"); err != nil {
		return err
	}
	return ValidateMaxLength(title, maxTitleLength, "title")
}

// ValidateDescription validates an event description
func (v EventValidation) ValidateDescription(description string) error {
	if err := ValidateRequired(description, "description"); err != nil {
		return err
	}
	return ValidateMaxLength(description, maxDescriptionLength, "description")
}

// ValidateLocation validates an event location
func (v EventValidation) ValidateLocation(location string) error {
	if err := ValidateRequired(location, "location"); err != nil {
		return err
	}
	return ValidateMaxLength(location, maxLocationLength, "location")
}

// ValidateDate rejects the zero time
func (v EventValidation) ValidateDate(date time.Time) error {
	if date.IsZero() {
		return errors.New("date is required")
	}
	return nil
}

// ValidateFields validates the input of a new event
func (v EventValidation) ValidateFields(f event.Fields) error {
	return errors.Join(
		v.ValidateTitle(f.Title),
		v.ValidateDescription(f.Description),
		v.ValidateLocation(f.Location),
		v.ValidateDate(f.Date),
		ValidateMin(f.MaxParticipants, 1, "max_participants"),
	)
}

// ValidatePatch validates the fields a patch sets
func (v EventValidation) ValidatePatch(p event.Patch) error {
	var errs []error
	if p.Title != nil {
		errs = append(errs, v.ValidateTitle(*p.Title))
	}
	if p.Description != nil {
		errs = append(errs, v.ValidateDescription(*p.Description))
	}
	if p.Location != nil {
		errs = append(errs, v.ValidateLocation(*p.Location))
	}
	if p.Date != nil {
		errs = append(errs, v.ValidateDate(*p.Date))
	}
	if p.MaxParticipants != nil {
		errs = append(errs, ValidateMin(*p.MaxParticipants, 1, "max_participants"))
	}
	return errors.Join(errs...)
}

// ValidateFilter validates a listing filter
func (v EventValidation) ValidateFilter(f event.Filter) error {
	if f.Status != nil && !f.Status.Valid() {
		return fmt.Errorf("invalid status: %s", *f.Status)
	}
	return ValidateDateRange(f.DateFrom, f.DateTo)
}

// UserValidation holds validations for user input
type UserValidation struct{}

// ValidateUserName validates a first or last name
func (v UserValidation) ValidateUserName(name, fieldName string) error {
	if err := ValidateRequired(name, fieldName); err != nil {
		return err
	}
	if err := ValidateMinLength(strings.TrimSpace(name), minNameLength, fieldName); err != nil {
		return err
	}
	return ValidateMaxLength(strings.TrimSpace(name), maxNameLength, fieldName)
}

// ValidateUserEmail validates a user's email
func (v UserValidation) ValidateUserEmail(email string) error {
	if err := ValidateRequired(email, "email"); err != nil {
		return err
	}
	return ValidateEmail(strings.TrimSpace(email))
}

// ValidateUserPatch validates the fields a user patch sets. Roles are
// checked by the domain once applied.
func (v UserValidation) ValidateUserPatch(p user.Patch) error {
	var errs []error
	if p.Email != nil {
		errs = append(errs, v.ValidateUserEmail(*p.Email))
	}
	if p.FirstName != nil {
		errs = append(errs, v.ValidateUserName(*p.FirstName, "first_name"))
	}
	if p.LastName != nil {
		errs = append(errs, v.ValidateUserName(*p.LastName, "last_name"))
	}
	return errors.Join(errs...)
}

package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/domain/participation"
	"github.com/gravadigital/eventhub-api/internal/domain/permission"
	"github.com/gravadigital/eventhub-api/internal/domain/user"
	"github.com/gravadigital/eventhub-api/internal/storage/migrations"
)

func fromEvent(e *event.Event) (*migrations.Event, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return nil, err
	}
	organizerID, err := parseID(e.OrganizerID)
	if err != nil {
		return nil, err
	}
	return &migrations.Event{
		ID:                  id,
		Title:               e.Title,
		Description:         e.Description,
		Location:            e.Location,
		Date:                e.Date.UTC(),
		MaxParticipants:     e.MaxParticipants,
		CurrentParticipants: e.CurrentParticipants,
		Status:              migrations.EventStatus(e.Status),
		OrganizerID:         organizerID,
		CreatedAt:           e.CreatedAt.UTC(),
		UpdatedAt:           e.UpdatedAt.UTC(),
	}, nil
}

func toEvent(rec *migrations.Event) *event.Event {
	return &event.Event{
		ID:                  rec.ID.String(),
		Title:               rec.Title,
		Description:         rec.Description,
		Location:            rec.Location,
		Date:                rec.Date.UTC(),
		MaxParticipants:     rec.MaxParticipants,
		CurrentParticipants: rec.CurrentParticipants,
		Status:              event.Status(rec.Status),
		OrganizerID:         rec.OrganizerID.String(),
		CreatedAt:           rec.CreatedAt.UTC(),
		UpdatedAt:           rec.UpdatedAt.UTC(),
	}
}

func fromParticipation(p *participation.Participation) (*migrations.Participation, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, err
	}
	eventID, err := parseID(p.EventID)
	if err != nil {
		return nil, err
	}
	userID, err := parseID(p.UserID)
	if err != nil {
		return nil, err
	}
	rec := &migrations.Participation{
		ID:           id,
		EventID:      eventID,
		UserID:       userID,
		Status:       migrations.ParticipationStatus(p.Status),
		RegisteredAt: p.RegisteredAt.UTC(),
	}
	if p.CancelledAt != nil {
		at := p.CancelledAt.UTC()
		rec.CancelledAt = &at
	}
	return rec, nil
}

func toParticipation(rec *migrations.Participation) *participation.Participation {
	p := &participation.Participation{
		ID:           rec.ID.String(),
		EventID:      rec.EventID.String(),
		UserID:       rec.UserID.String(),
		Status:       participation.Status(rec.Status),
		RegisteredAt: rec.RegisteredAt.UTC(),
	}
	if rec.CancelledAt != nil {
		at := rec.CancelledAt.UTC()
		p.CancelledAt = &at
	}
	if rec.User != nil {
		p.User = toUser(rec.User)
	}
	return p
}

func fromUser(u *user.User) (*migrations.User, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, err
	}
	roles := make(pq.StringArray, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = string(r)
	}
	return &migrations.User{
		ID:        id,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     roles,
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func toUser(rec *migrations.User) *user.User {
	roles := make([]permission.Role, len(rec.Roles))
	for i, r := range rec.Roles {
		roles[i] = permission.Role(r)
	}
	return &user.User{
		ID:        rec.ID.String(),
		Email:     rec.Email,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Roles:     roles,
		CreatedAt: rec.CreatedAt.UTC(),
	}
}

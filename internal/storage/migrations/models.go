package migrations

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Custom enum types for GORM

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

func (es *EventStatus) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*es = EventStatusDraft
	case string:
		*es = EventStatus(v)
	case []byte:
		*es = EventStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into EventStatus", value)
	}
	return nil
}

func (es EventStatus) Value() (driver.Value, error) {
	return string(es), nil
}

type ParticipationStatus string

const (
	ParticipationStatusRegistered ParticipationStatus = "registered"
	ParticipationStatusAttended   ParticipationStatus = "attended"
	ParticipationStatusCancelled  ParticipationStatus = "cancelled"
)

func (ps *ParticipationStatus) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*ps = ParticipationStatusRegistered
	case string:
		*ps = ParticipationStatus(v)
	case []byte:
		*ps = ParticipationStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into ParticipationStatus", value)
	}
	return nil
}

func (ps ParticipationStatus) Value() (driver.Value, error) {
	return string(ps), nil
}

// User is a registered identity. Roles are stored as a text array.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	FirstName string         `gorm:"not null" json:"first_name"`
	LastName  string         `gorm:"not null" json:"last_name"`
	Roles     pq.StringArray `gorm:"type:text[];not null;default:'{participant}'" json:"roles"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Event is a scheduled activity with a participant counter
type Event struct {
	ID                  uuid.UUID   `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Title               string      `gorm:"not null" json:"title"`
	Description         string      `gorm:"type:text;not null" json:"description"`
	Location            string      `gorm:"not null" json:"location"`
	Date                time.Time   `gorm:"type:timestamptz;not null" json:"date"`
	MaxParticipants     int         `gorm:"not null" json:"max_participants"`
	CurrentParticipants int         `gorm:"not null;default:0" json:"current_participants"`
	Status              EventStatus `gorm:"type:event_status;not null;default:'draft'" json:"status"`
	OrganizerID         uuid.UUID   `gorm:"type:uuid;not null" json:"organizer_id"`
	CreatedAt           time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time   `gorm:"not null" json:"updated_at"`

	// Relations
	Organizer      *User           `gorm:"foreignKey:OrganizerID;constraint:OnDelete:RESTRICT" json:"organizer,omitempty"`
	Participations []Participation `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"participations,omitempty"`
}

func (Event) TableName() string {
	return "events"
}

// Participation links a user to an event
type Participation struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	EventID      uuid.UUID           `gorm:"type:uuid;not null" json:"event_id"`
	UserID       uuid.UUID           `gorm:"type:uuid;not null" json:"user_id"`
	Status       ParticipationStatus `gorm:"type:participation_status;not null;default:'registered'" json:"status"`
	RegisteredAt time.Time           `gorm:"type:timestamptz;not null" json:"registered_at"`
	CancelledAt  *time.Time          `gorm:"type:timestamptz" json:"cancelled_at,omitempty"`

	// Relations
	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT" json:"user,omitempty"`
}

func (Participation) TableName() string {
	return "participations"
}

// AllModels returns every model managed by AutoMigrate, parents first
func AllModels() []any {
	return []any{
		&User{},
		&Event{},
		&Participation{},
	}
}

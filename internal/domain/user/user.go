package user

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gravadigital/eventhub-api/internal/domain/permission"
)

// MaxRoles is the number of distinct roles a user can hold
const MaxRoles = 3

// User is an identity known to the event core. Credentials live elsewhere.
type User struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Roles     []permission.Role `json:"roles"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewUser creates a user with a normalized email. With no roles given the
// user is a participant.
func NewUser(email, firstName, lastName string, roles ...permission.Role) *User {
	if len(roles) == 0 {
		roles = []permission.Role{permission.RoleParticipant}
	}
	return &User{
		ID:        uuid.NewString(),
		Email:     NormalizeEmail(email),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Roles:     dedupe(roles),
		CreatedAt: time.Now().UTC(),
	}
}

// NormalizeEmail trims and lowercases an address for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasRole checks if the user holds role
func (u *User) HasRole(role permission.Role) bool {
	return slices.Contains(u.Roles, role)
}

// IsAdmin checks if the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.HasRole(permission.RoleAdmin)
}

// Can reports whether the user's roles allow op
func (u *User) Can(op permission.Operation) bool {
	return permission.Can(u.Roles, op)
}

// Validate checks if the user data is valid
func (u *User) Validate() error {
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if u.FirstName == "" {
		return fmt.Errorf("first name is required")
	}
	if u.LastName == "" {
		return fmt.Errorf("last name is required")
	}
	if len(u.Roles) == 0 {
		return fmt.Errorf("at least one role is required")
	}
	if len(u.Roles) > MaxRoles {
		return fmt.Errorf("at most %d roles are allowed", MaxRoles)
	}
	for _, r := range u.Roles {
		if _, ok := permission.ParseRole(string(r)); !ok {
			return fmt.Errorf("unknown role: %s", r)
		}
	}
	return nil
}

// Patch is a partial update of a user; nil fields are left untouched. A
// non-nil Roles replaces the whole role set.
type Patch struct {
	Email     *string
	FirstName *string
	LastName  *string
	Roles     []permission.Role
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p.Email == nil && p.FirstName == nil && p.LastName == nil && p.Roles == nil
}

// Apply copies the set fields onto u. ID and CreatedAt are never touched.
func (p Patch) Apply(u *User) {
	if p.Email != nil {
		u.Email = NormalizeEmail(*p.Email)
	}
	if p.FirstName != nil {
		u.FirstName = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		u.LastName = strings.TrimSpace(*p.LastName)
	}
	if p.Roles != nil {
		u.Roles = dedupe(p.Roles)
	}
}

func dedupe(roles []permission.Role) []permission.Role {
	out := make([]permission.Role, 0, len(roles))
	for _, r := range roles {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

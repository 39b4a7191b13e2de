package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravadigital/eventhub-api/internal/domain/permission"
)

func TestNewUserDefaultsToParticipant(t *testing.T) {
	u := NewUser("  Ada@Example.COM ", "Ada", "Lovelace")

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, []permission.Role{permission.RoleParticipant}, u.Roles)
	assert.Equal(t, "Ada Lovelace", u.FullName())
	assert.False(t, u.IsAdmin())
	require.NoError(t, u.Validate())
}

func TestNewUserDedupesRoles(t *testing.T) {
	u := NewUser("a@b.io", "A", "B", permission.RoleOrganizer, permission.RoleOrganizer, permission.RoleAdmin)

	assert.Equal(t, []permission.Role{permission.RoleOrganizer, permission.RoleAdmin}, u.Roles)
	assert.True(t, u.HasRole(permission.RoleOrganizer))
	assert.True(t, u.IsAdmin())
	assert.True(t, u.Can(permission.OpRemoveEvent))
	assert.False(t, u.Can(permission.OpRegister))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(u *User)
	}{
		{"missing email", func(u *User) { u.Email = "" }},
		{"missing first name", func(u *User) { u.FirstName = "" }},
		{"missing last name", func(u *User) { u.LastName = "" }},
		{"no roles", func(u *User) { u.Roles = nil }},
		{"unknown role", func(u *User) { u.Roles = []permission.Role{"superuser"} }},
		{"too many roles", func(u *User) {
			u.Roles = []permission.Role{permission.RoleAdmin, permission.RoleOrganizer, permission.RoleParticipant, "extra"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUser("a@b.io", "A", "B")
			tt.mutate(u)
			assert.Error(t, u.Validate())
		})
	}
}

func TestPatchApply(t *testing.T) {
	u := NewUser("ada@example.com", "Ada", "Lovelace")
	id, created := u.ID, u.CreatedAt
	email := " Countess@Example.com "
	last := " King "

	assert.True(t, Patch{}.IsEmpty())
	Patch{
		Email:    &email,
		LastName: &last,
		Roles:    []permission.Role{permission.RoleOrganizer, permission.RoleOrganizer},
	}.Apply(u)

	assert.Equal(t, id, u.ID)
	assert.Equal(t, created, u.CreatedAt)
	assert.Equal(t, "countess@example.com", u.Email)
	assert.Equal(t, "Ada", u.FirstName)
	assert.Equal(t, "King", u.LastName)
	assert.Equal(t, []permission.Role{permission.RoleOrganizer}, u.Roles)
}

func TestPatchEmptyRolesFailValidation(t *testing.T) {
	u := NewUser("ada@example.com", "Ada", "Lovelace")
	Patch{Roles: []permission.Role{}}.Apply(u)

	assert.False(t, Patch{Roles: []permission.Role{}}.IsEmpty())
	assert.Error(t, u.Validate())
}

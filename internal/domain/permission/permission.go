// Package permission resolves coarse role-based authorization over a static table.
package permission

import "slices"

// Role is a coarse authorization grouping held by a user.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
)

// Permission is a fine-grained capability granted through roles.
type Permission string

const (
	// Users
	ManageUsers Permission = "manage_users"
	ReadUsers   Permission = "read_users"
	CreateUsers Permission = "create_users"
	UpdateUsers Permission = "update_users"
	DeleteUsers Permission = "delete_users"

	// Events
	ManageEvents Permission = "manage_events"
	ReadEvents   Permission = "read_events"
	CreateEvents Permission = "create_events"
	UpdateEvents Permission = "update_events"
	DeleteEvents Permission = "delete_events"

	// Statistics
	ViewStatistics Permission = "view_statistics"
)

// All lists every known permission.
var All = []Permission{
	ManageUsers, ReadUsers, CreateUsers, UpdateUsers, DeleteUsers,
	ManageEvents, ReadEvents, CreateEvents, UpdateEvents, DeleteEvents,
	ViewStatistics,
}

var rolePermissions = map[Role][]Permission{
	RoleAdmin:       All,
	RoleOrganizer:   {ReadEvents, CreateEvents, UpdateEvents, ReadUsers},
	RoleParticipant: {ReadEvents},
}

// Set is an unordered collection of permissions.
type Set map[Permission]struct{}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the permissions in lexical order.
func (s Set) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Granted returns the permissions the table grants to a single role.
// Unknown roles grant nothing.
func Granted(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}

// Resolve returns the union of the permissions granted by roles.
func Resolve(roles ...Role) Set {
	set := make(Set)
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			set[p] = struct{}{}
		}
	}
	return set
}

// HasAll reports whether roles grant every required permission.
func HasAll(roles []Role, required ...Permission) bool {
	granted := Resolve(roles...)
	for _, p := range required {
		if !granted.Has(p) {
			return false
		}
	}
	return true
}

// HasAnyRole reports whether roles intersect allowed. An empty allowed list
// places no restriction.
func HasAnyRole(roles []Role, allowed ...Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, role := range roles {
		if slices.Contains(allowed, role) {
			return true
		}
	}
	return false
}

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleOrganizer, RoleParticipant:
		return r, true
	default:
		return "", false
	}
}

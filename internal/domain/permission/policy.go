package permission

// Operation names an entry point of the event core.
type Operation string

const (
	OpCreateEvent      Operation = "create_event"
	OpListEvents       Operation = "list_events"
	OpGetEvent         Operation = "get_event"
	OpUpdateEvent      Operation = "update_event"
	OpTransitionStatus Operation = "transition_status"
	OpRemoveEvent      Operation = "remove_event"
	OpRegister         Operation = "register"
	OpCancel           Operation = "cancel"
	OpListParticipants Operation = "list_participants"
	OpListUsers        Operation = "list_users"
	OpGetUser          Operation = "get_user"
	OpUpdateUser       Operation = "update_user"
	OpRemoveUser       Operation = "remove_user"
)

// Requirement combines the role gate and the permission gate for one operation.
type Requirement struct {
	Roles       []Role
	Permissions []Permission
}

// Allows reports whether roles pass both gates.
func (r Requirement) Allows(roles []Role) bool {
	return HasAnyRole(roles, r.Roles...) && HasAll(roles, r.Permissions...)
}

// Policy is the coarse authorization a caller checks before invoking the core.
// Organizer ownership is checked by the core itself.
var Policy = map[Operation]Requirement{
	OpCreateEvent:      {Roles: []Role{RoleAdmin, RoleOrganizer}, Permissions: []Permission{CreateEvents}},
	OpListEvents:       {Permissions: []Permission{ReadEvents}},
	OpGetEvent:         {Permissions: []Permission{ReadEvents}},
	OpUpdateEvent:      {Roles: []Role{RoleAdmin, RoleOrganizer}, Permissions: []Permission{UpdateEvents}},
	OpTransitionStatus: {Roles: []Role{RoleAdmin, RoleOrganizer}, Permissions: []Permission{UpdateEvents}},
	OpRemoveEvent:      {Roles: []Role{RoleAdmin}, Permissions: []Permission{DeleteEvents}},
	OpRegister:         {Roles: []Role{RoleParticipant}},
	OpCancel:           {Roles: []Role{RoleParticipant}},
	OpListParticipants: {Roles: []Role{RoleAdmin, RoleOrganizer}},
	OpListUsers:        {Roles: []Role{RoleAdmin, RoleOrganizer}, Permissions: []Permission{ReadUsers}},
	OpGetUser:          {Roles: []Role{RoleAdmin, RoleOrganizer}, Permissions: []Permission{ReadUsers}},
	OpUpdateUser:       {Roles: []Role{RoleAdmin}, Permissions: []Permission{UpdateUsers}},
	OpRemoveUser:       {Roles: []Role{RoleAdmin}, Permissions: []Permission{DeleteUsers}},
}

// Can reports whether roles may invoke op. Unknown operations are denied.
func Can(roles []Role, op Operation) bool {
	req, ok := Policy[op]
	if !ok {
		return false
	}
	return req.Allows(roles)
}

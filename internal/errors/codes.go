// Package errors provides the typed failure results returned by the event core.
package errors

// Code is a machine-readable failure reason.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Event errors
	CodeEventNotFound                Code = "EVENT_NOT_FOUND"
	CodeEventNotOrganizer            Code = "EVENT_NOT_ORGANIZER"
	CodeEventInvalidStatusTransition Code = "EVENT_INVALID_STATUS_TRANSITION"
	CodeEventNotPublished            Code = "EVENT_NOT_PUBLISHED"
	CodeEventFull                    Code = "EVENT_FULL"
	CodeEventCapacityBelowRegistered Code = "EVENT_CAPACITY_BELOW_REGISTERED"
	CodeEventHasParticipants         Code = "EVENT_HAS_PARTICIPANTS"

	// Participation errors
	CodeParticipationNotFound          Code = "PARTICIPATION_NOT_FOUND"
	CodeParticipationAlreadyRegistered Code = "PARTICIPATION_ALREADY_REGISTERED"

	// User errors
	CodeUserNotFound   Code = "USER_NOT_FOUND"
	CodeUserEmailTaken Code = "USER_EMAIL_TAKEN"
	CodeUserInUse      Code = "USER_IN_USE"

	// Input errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Storage errors
	CodeStorage Code = "STORAGE"
)

// Kind is the coarse failure class a caller maps to a transport response.
type Kind string

const (
	KindUnknown   Kind = "unknown"
	KindNotFound  Kind = "not_found"
	KindForbidden Kind = "forbidden"
	KindConflict  Kind = "conflict"
	KindInvalid   Kind = "invalid"
	KindStorage   Kind = "storage"
)

// Kind maps a reason code to its failure kind.
func (c Code) Kind() Kind {
	switch c {
	case CodeEventNotFound,
		CodeParticipationNotFound,
		CodeUserNotFound:
		return KindNotFound

	case CodeEventNotOrganizer:
		return KindForbidden

	case CodeEventInvalidStatusTransition,
		CodeEventNotPublished,
		CodeEventFull,
		CodeEventCapacityBelowRegistered,
		CodeEventHasParticipants,
		CodeParticipationAlreadyRegistered,
		CodeUserEmailTaken,
		CodeUserInUse:
		return KindConflict

	case CodeInvalidArgument:
		return KindInvalid

	case CodeStorage:
		return KindStorage

	default:
		return KindUnknown
	}
}

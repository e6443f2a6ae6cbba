// Package errs defines the single discriminated error type used across
// the reservation engine. Every operation that can fail returns either
// nil or an *Error carrying a Kind plus a human message; callers switch
// on Kind rather than matching error strings.
package errs

import (
	"fmt"
)

// Kind discriminates the family of failure. See the field comments for
// which extra data each kind carries in Error.
type Kind int

const (
	// Validation marks a schema or rule violation on a named field.
	Validation Kind = iota
	// NotFound marks a missing reservation or resource.
	NotFound
	// PathRelationshipViolation marks a reserve request against a path
	// unrelated to the working directory, made without an override.
	PathRelationshipViolation
	// StickyFieldChange marks a rejected project/task change.
	StickyFieldChange
	// PortExhausted marks a single allocation that found no free port.
	PortExhausted
	// PreferredPortUnavailable marks a rejected explicit port request.
	PreferredPortUnavailable
	// GroupAllocationFailed marks a group pattern that could not be satisfied.
	GroupAllocationFailed
	// ReservationConflict marks a migration destination collision.
	ReservationConflict
	// InvalidPath marks a path that could not be transformed.
	InvalidPath
	// DatabaseCorruption marks a failed integrity check.
	DatabaseCorruption
	// LockWaitTimeout marks an exceeded transaction lock wait.
	LockWaitTimeout
	// IO wraps an underlying storage or filesystem error.
	IO
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case PathRelationshipViolation:
		return "path_relationship_violation"
	case StickyFieldChange:
		return "sticky_field_change"
	case PortExhausted:
		return "port_exhausted"
	case PreferredPortUnavailable:
		return "preferred_port_unavailable"
	case GroupAllocationFailed:
		return "group_allocation_failed"
	case ReservationConflict:
		return "reservation_conflict"
	case InvalidPath:
		return "invalid_path"
	case DatabaseCorruption:
		return "database_corruption"
	case LockWaitTimeout:
		return "lock_wait_timeout"
	case IO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is the engine's sole error type. Field is populated for
// Validation and StickyFieldChange; the remaining fields are set only
// by the kinds that need them (Port, Reason, RangeMin/RangeMax,
// TriedClean, Path, Seconds).
type Error struct {
	Kind    Kind
	Field   string
	Message string

	// Port-related extras.
	Port      uint16
	Reason    string
	RangeMin  uint16
	RangeMax  uint16
	TriedClean bool

	Path string
	Seconds int
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the Kind from err, returning (kind, true) if err is
// (or wraps) an *Error, or (0, false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return KindOf(unwrapper.Unwrap())
	} else {
		return 0, false
	}
	return e.Kind, true
}

func Validationf(field, format string, args ...any) *Error {
	return &Error{Kind: Validation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf(format, args...)}
}

func PathRelationshipf(format string, args ...any) *Error {
	return &Error{Kind: PathRelationshipViolation, Message: fmt.Sprintf(format, args...)}
}

func StickyFieldf(field, format string, args ...any) *Error {
	return &Error{Kind: StickyFieldChange, Field: field, Message: fmt.Sprintf(format, args...)}
}

func PortExhaustedErr(min, max uint16, triedCleanup bool) *Error {
	return &Error{
		Kind:       PortExhausted,
		RangeMin:   min,
		RangeMax:   max,
		TriedClean: triedCleanup,
		Message:    fmt.Sprintf("no available port in [%d,%d]", min, max),
	}
}

func PreferredUnavailable(port uint16, reason string) *Error {
	return &Error{
		Kind:    PreferredPortUnavailable,
		Port:    port,
		Reason:  reason,
		Message: fmt.Sprintf("preferred port %d unavailable: %s", port, reason),
	}
}

func GroupAllocationFailedf(format string, args ...any) *Error {
	return &Error{Kind: GroupAllocationFailed, Message: fmt.Sprintf(format, args...)}
}

func ReservationConflictf(format string, args ...any) *Error {
	return &Error{Kind: ReservationConflict, Message: fmt.Sprintf(format, args...)}
}

func InvalidPathf(path, format string, args ...any) *Error {
	return &Error{Kind: InvalidPath, Path: path, Message: fmt.Sprintf(format, args...)}
}

func DatabaseCorruptionf(format string, args ...any) *Error {
	return &Error{Kind: DatabaseCorruption, Message: fmt.Sprintf(format, args...)}
}

func LockWaitTimeoutf(seconds int) *Error {
	return &Error{Kind: LockWaitTimeout, Seconds: seconds, Message: fmt.Sprintf("lock wait exceeded %ds", seconds)}
}

func IOf(format string, args ...any) *Error {
	return &Error{Kind: IO, Message: fmt.Sprintf(format, args...)}
}

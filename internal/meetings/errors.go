package meetings

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a meeting does not exist or has expired.
	ErrNotFound = errors.New("meetings: meeting not found")
	// ErrCapacityReached is matched by CapacityError.
	ErrCapacityReached = errors.New("meetings: participant limit reached")
	// ErrDuplicateParticipant is matched by DuplicateParticipantError.
	ErrDuplicateParticipant = errors.New("meetings: participant already registered")
	// ErrIdentifierCollision means two freshly generated ids were both taken.
	// The random source is broken if this ever happens.
	ErrIdentifierCollision = errors.New("meetings: identifier collision")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "meetings: validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "meetings: validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error, appending to earlier ones.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if prev, ok := v.FieldErrors[field]; ok {
		message = prev + "; " + message
	}
	v.FieldErrors[field] = message
}

// CapacityError is returned when a meeting already holds Limit participants.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("meetings: participant limit of %d reached", e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityReached }

// DuplicateParticipantError is returned when Name already answered the meeting.
type DuplicateParticipantError struct {
	Name string
}

func (e *DuplicateParticipantError) Error() string {
	return fmt.Sprintf("meetings: participant %q already registered", e.Name)
}

func (e *DuplicateParticipantError) Unwrap() error { return ErrDuplicateParticipant }

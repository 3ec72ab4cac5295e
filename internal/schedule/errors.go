package schedule

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("appointment not found")
	ErrInvalidState  = errors.New("invalid status transition")
	ErrConflict      = errors.New("slot unavailable")
	ErrStorage       = errors.New("storage failure")
	ErrHoldNotFound  = errors.New("hold not found")
	ErrResourceBusy  = errors.New("resource is being modified, please retry")
	ErrInvalidOrigin = errors.New("invalid origin")

	// ErrHoldExpired is the ErrInvalidState returned when a hold lapsed
	// before it was confirmed or extended.
	ErrHoldExpired = fmt.Errorf("%w: hold expired", ErrInvalidState)
)

// ConflictError names the appointment that blocks a proposal or confirmation.
type ConflictError struct {
	WithID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot unavailable: overlaps appointment %s", e.WithID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StorageError wraps a failure of the persistence collaborator. The engine
// leaves its in-memory state untouched when one is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func invalidState(id uuid.UUID, from AppointmentStatus, op string) error {
	return fmt.Errorf("%w: cannot %s appointment %s in status %s", ErrInvalidState, op, id, from)
}

package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMediaNotFound is returned when a Media row is gone. It wraps ErrNotFound.
	ErrMediaNotFound = fmt.Errorf("media %w", ErrNotFound)
	// ErrInvalidTransition is returned when a status change does not apply.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConsistencyViolation is returned when a Media's project differs from its Collection's.
	ErrConsistencyViolation = errors.New("media project does not match collection project")
	// ErrCollectionGone is returned when inserting into a Collection that was removed.
	ErrCollectionGone = errors.New("collection no longer exists")
	// ErrDeprecatedStatus is returned when writing a legacy status value.
	ErrDeprecatedStatus = errors.New("deprecated status")
	// ErrHasChildren is returned when deleting a parent row that still owns children.
	ErrHasChildren = errors.New("row still has children")
	// ErrPayloadInUse is returned when a sealed file already belongs to another Media.
	ErrPayloadInUse = errors.New("sealed payload already belongs to another media")
)

// TransitionError describes a rejected compare-and-swap status write.
type TransitionError struct {
	MediaID int64
	From    Status
	To      Status
	// Actual is the status found on the row, equal to From when the edge
	// itself is not part of the state machine.
	Actual Status
}

func (e *TransitionError) Error() string {
	if e.Actual == e.From {
		return fmt.Sprintf("media %d: %s -> %s not allowed", e.MediaID, e.From, e.To)
	}
	return fmt.Sprintf("media %d: expected %s for -> %s, found %s", e.MediaID, e.From, e.To, e.Actual)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

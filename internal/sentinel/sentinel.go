// Package sentinel holds the error taxonomy shared by the attendance core.
//
// Stores and services return these (usually wrapped with fmt.Errorf and %w) so
// the HTTP layer can map them to operator-facing messages with errors.Is.
package sentinel

import "errors"

var (
	// ErrInvalidPayload: scan or manual input matched none of the accepted shapes.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrPersonNotFound: lookup by id, phone or email failed and no visitor fallback applies.
	ErrPersonNotFound = errors.New("person not found")
	// ErrNoRoomAvailable: child check-in attempted on an event with zero assigned rooms.
	ErrNoRoomAvailable = errors.New("no room available")
	// ErrRoomRequired: the event has several rooms and none was chosen.
	ErrRoomRequired = errors.New("room selection required")
	// ErrInvalidRoom: the chosen room is not assigned to the event.
	ErrInvalidRoom = errors.New("room not assigned to event")
	// ErrNotRegistered: a child check-in needs the parent's registration first.
	ErrNotRegistered = errors.New("parent not registered for event")
	// ErrNotFound: edit or delete target vanished.
	ErrNotFound = errors.New("not found")
	// ErrWriteConflict: a concurrent write won and could not be re-read.
	ErrWriteConflict = errors.New("write conflict")
	// ErrInvalidState: the record is in the wrong state for the transition.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation: required fields missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrBusy: the scanner is still processing a previous decode.
	ErrBusy = errors.New("scanner busy")
)

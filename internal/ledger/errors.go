package ledger

import "errors"

var (
	// ErrEventNotFound means the referenced event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrBookingNotFound means the referenced booking does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrInsufficientCapacity means the requested seats exceed what remains.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrInvalidArgument means the caller supplied a malformed request.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConsistencyFault means an internal seat-accounting invariant was
	// violated. It signals a bug elsewhere, never a recoverable condition,
	// and is always reported with state left unchanged.
	ErrConsistencyFault = errors.New("seat accounting inconsistency")
)

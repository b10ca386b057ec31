package entity

import "errors"

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInsufficientSeats = errors.New("not enough seats available")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrMissingField      = errors.New("missing required field")

	// ErrStoreUnavailable marks transient infrastructure failures. The
	// request that triggered it left no partial effect, so the caller may
	// retry it as-is.
	ErrStoreUnavailable = errors.New("store unavailable")
)

package models

import "errors"

// Domain error taxonomy. Services wrap these with context; the HTTP layer
// maps them to response codes with errors.Is.
var (
	// ErrBadRequest covers malformed input and unknown enum values,
	// rejected before any write.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound covers missing ids and references outside the caller's
	// restaurant scope. The two are deliberately indistinguishable.
	ErrNotFound = errors.New("not found")

	// ErrOfferUnavailable means the offer failed the availability
	// predicate at lookup time (no quantity, or outside its time bounds).
	ErrOfferUnavailable = errors.New("offer unavailable")

	// ErrOutOfStock means another intake took the last unit between the
	// availability lookup and the conditional decrement. Expected under
	// concurrent demand, never a system failure.
	ErrOutOfStock = errors.New("out of stock")
)

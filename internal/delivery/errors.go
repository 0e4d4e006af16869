package delivery

import "errors"

// Domain errors for the delivery package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, delivery.ErrNoCapacity) {
//	    // surface 409 to the caller
//	}
var (
	// ErrNoCapacity is returned when no compartment matches the requested
	// constraints. Recoverable: the caller retries later or widens the
	// constraints. Internal allocation conflicts surface as this too.
	ErrNoCapacity = errors.New("delivery: no compartment available")

	// ErrNotFound is returned when pickup credentials do not match an
	// active delivery. Deliberately ambiguous between "wrong code" and
	// "already picked up" so callers cannot probe which field was wrong.
	ErrNotFound = errors.New("delivery: not found")

	// ErrExpired is returned when pickup credentials are valid but past
	// expiry. The pickup path never mutates state on expiry; the sweep
	// owns the delivered → expired transition.
	ErrExpired = errors.New("delivery: expired")

	// ErrInvalidPayload is returned when a scanned pickup payload cannot
	// be decoded. Fails before any lookup.
	ErrInvalidPayload = errors.New("delivery: invalid pickup payload")

	// ErrCodeCollision is returned when a freshly issued pickup code
	// collides with another active delivery. The manager retries issuance.
	ErrCodeCollision = errors.New("delivery: pickup code collision")

	// ErrInvalidRequest is returned when delivery creation input fails
	// validation. Never mutates state.
	ErrInvalidRequest = errors.New("delivery: invalid request")
)

package status

import "errors"

var (
	// ErrEventNotFound is returned when the referenced event does not exist.
	ErrEventNotFound = errors.New("event: not found")

	// ErrAttemptNotFound is returned when no payment attempt matches the
	// given gateway reference.
	ErrAttemptNotFound = errors.New("payment: attempt not found")

	// ErrUnavailable is returned by the advisory availability check at
	// attempt creation time. It is not the oversell guard.
	ErrUnavailable = errors.New("event: not enough tickets available")

	// ErrCapacityExceeded is returned when the authoritative conditional
	// increment at commit time finds insufficient capacity. The attempt is
	// durably failed; retrying cannot succeed.
	ErrCapacityExceeded = errors.New("ledger: capacity exceeded")

	// ErrGateway is returned when the external payment gateway call fails.
	ErrGateway = errors.New("gateway: request failed")

	// ErrBadSignature is returned when a webhook signature does not verify.
	ErrBadSignature = errors.New("webhook: signature verification failed")

	// ErrConflict is returned when a transition is requested on a terminal
	// payment attempt that cannot absorb it (e.g. committing a failed one).
	ErrConflict = errors.New("payment: conflicting state transition")

	// ErrPaymentNotSucceeded is returned by the synchronous confirm path
	// when the gateway reports the intent as not (yet) succeeded.
	ErrPaymentNotSucceeded = errors.New("payment: not successful")
)

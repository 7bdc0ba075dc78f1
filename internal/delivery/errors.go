package delivery

import "errors"

var (
	// ErrUnknownMessage is returned for lookups and retries on an id that
	// was never tracked (or has expired upstream).
	ErrUnknownMessage = errors.New("unknown message id")
	// ErrNotRetryable is returned when a retry is requested for a message
	// whose status does not need one.
	ErrNotRetryable = errors.New("message status does not need retry")
)

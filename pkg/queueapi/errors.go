package queueapi

import "errors"

var (
	// ErrNoQueues is returned by New without any queue to serve.
	ErrNoQueues = errors.New("queueapi: at least one queue is required")
	// ErrQueueNil is returned by New when a queue entry is nil.
	ErrQueueNil = errors.New("queueapi: queue cannot be nil")
)

// Request errors, mapped to 4xx responses.
var (
	ErrQueueNotFound        = errors.New("queue not found")
	ErrRouteNotFound        = errors.New("route not found")
	ErrMethodNotAllowed     = errors.New("method not allowed")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingContentType   = errors.New("missing content type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrPayloadRequired      = errors.New("either payload or payloads is required")
	ErrAmbiguousPayload     = errors.New("payload and payloads are mutually exclusive")
	ErrNegativeDuration     = errors.New("durations must not be negative")
	ErrDurationTooLarge     = errors.New("duration is too large")
)

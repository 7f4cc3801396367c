package queue

import "errors"

// Error taxonomy. Wrapped errors returned by the queue always match one of the
// first three with errors.Is; store failures are returned as they come.
var (
	// ErrInvalidConfiguration is returned by New when the queue cannot be built.
	ErrInvalidConfiguration = errors.New("invalid queue configuration")

	// ErrInvalidArgument is returned when an operation receives unusable input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownLease is returned by Extend and Finalize when no live lease
	// matches the token: unknown token, lease expired, or message already done.
	// Workers should treat it as a lost race, not a fatal condition.
	ErrUnknownLease = errors.New("unknown lease")

	// ErrNoMatch is returned by MessageStore implementations when no document
	// matches the operation's predicate.
	ErrNoMatch = errors.New("no matching message")
)

// Configuration and argument details, joined with the taxonomy errors above.
var (
	ErrStoreNil          = errors.New("message store cannot be nil")
	ErrNameEmpty         = errors.New("queue name cannot be empty")
	ErrDeadLetterSelf    = errors.New("queue cannot be its own dead-letter queue")
	ErrEmptyBatch        = errors.New("batch must contain at least one payload")
	ErrPayloadNil        = errors.New("payload cannot be nil")
	ErrPayloadMarshal    = errors.New("failed to marshal payload to JSON")
	ErrLeaseTokenEmpty   = errors.New("lease token cannot be empty")
	ErrInvalidFilter     = errors.New("unknown count filter")
	ErrTokenGeneration   = errors.New("failed to generate lease token")
	ErrDeadLetterEnqueue = errors.New("failed to move message to dead-letter queue")

	// ErrNoHandler is returned when a worker is built without a handler.
	ErrNoHandler = errors.New("worker handler cannot be nil")
	// ErrQueueNil is returned when a worker is built without a queue.
	ErrQueueNil = errors.New("queue cannot be nil")

	// ErrUnknownDeadLetterQueue is returned by Topology.Build for a reference to an undeclared queue.
	ErrUnknownDeadLetterQueue = errors.New("dead-letter queue is not declared")
	// ErrDeadLetterCycle is returned by Topology.Build when dead-letter references form a cycle.
	ErrDeadLetterCycle = errors.New("dead-letter references form a cycle")
	// ErrDuplicateQueue is returned by Topology.Build when a queue is declared twice.
	ErrDuplicateQueue = errors.New("queue declared more than once")
)

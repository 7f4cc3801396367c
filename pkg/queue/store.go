package queue

import (
	"context"
	"time"
)

// MessageStore is the persistence contract of a queue. Every method is a
// single round trip, and ClaimNext, UpdateLease and MarkDone must each be
// atomic with respect to each other on the same document: selecting the
// document, applying the update and returning the new state are indivisible.
//
// Methods that target one document return ErrNoMatch when nothing satisfies
// the predicate.
type MessageStore interface {
	// InsertMany stores new pending messages in order and returns their
	// identities in the same order. Implementations assign Message.ID.
	InsertMany(ctx context.Context, msgs []*Message) ([]string, error)

	// ClaimNext picks the claimable message (not done, VisibleAt <= now) with
	// the smallest VisibleAt, ties broken by insertion order, increments its
	// Tries, sets its LeaseToken and VisibleAt from lease and returns the
	// updated message.
	ClaimNext(ctx context.Context, now time.Time, lease Lease) (*Message, error)

	// UpdateLease applies upd to the not-done message holding token whose
	// VisibleAt is after now, and returns the updated message.
	UpdateLease(ctx context.Context, token string, now time.Time, upd LeaseUpdate) (*Message, error)

	// MarkDone sets DoneAt to now and clears LeaseToken and VisibleAt on the
	// not-done message holding token whose VisibleAt is after now.
	MarkDone(ctx context.Context, token string, now time.Time) (*Message, error)

	// DeleteDone removes every done message.
	DeleteDone(ctx context.Context) error

	// Count returns the number of messages matching f at now.
	Count(ctx context.Context, f Filter, now time.Time) (int64, error)
}

// Indexer is implemented by stores that need secondary indexes provisioned.
// Indexes serve performance only; correctness never depends on them.
type Indexer interface {
	EnsureIndexes(ctx context.Context) error
}

// Lease describes the claim applied by ClaimNext.
type Lease struct {
	Token string
	Until time.Time
}

// LeaseUpdate describes the change applied by UpdateLease.
type LeaseUpdate struct {
	// VisibleAt is the new lease deadline (or visibility time on release).
	VisibleAt time.Time
	// ResetTries zeroes the try counter.
	ResetTries bool
	// ClearToken removes the lease token, returning the message to pending.
	ClearToken bool
}

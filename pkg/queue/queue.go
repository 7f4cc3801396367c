package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/docqueue/pkg/logger"
)

var jsonNull = []byte("null")

// Queue orchestrates the message lifecycle against a MessageStore.
//
// A Queue holds no mutable state of its own and takes no locks; all mutual
// exclusion between workers comes from the store's atomic claim and lease
// updates, so any number of Queue values in any number of processes may share
// one store and name.
type Queue struct {
	store      MessageStore
	name       string
	visibility time.Duration
	delay      time.Duration
	deadLetter *Queue
	maxRetries int
	clock      Clock
	tokens     TokenGenerator
	logger     *slog.Logger
}

// New creates a Queue named name on top of store.
func New(store MessageStore, name string, opts ...Option) (*Queue, error) {
	if store == nil {
		return nil, errors.Join(ErrInvalidConfiguration, ErrStoreNil)
	}
	if name == "" {
		return nil, errors.Join(ErrInvalidConfiguration, ErrNameEmpty)
	}

	o := &options{
		visibility: DefaultVisibility,
		maxRetries: -1,
		clock:      SystemClock{},
		tokens:     NewLeaseToken,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	switch {
	case o.deadLetter == nil:
		o.maxRetries = -1
	case o.deadLetter.name == name:
		return nil, errors.Join(ErrInvalidConfiguration, ErrDeadLetterSelf)
	case o.maxRetries < 0:
		o.maxRetries = DefaultMaxRetries
	}

	return &Queue{
		store:      store,
		name:       name,
		visibility: o.visibility,
		delay:      o.delay,
		deadLetter: o.deadLetter,
		maxRetries: o.maxRetries,
		clock:      o.clock,
		tokens:     o.tokens,
		logger:     o.logger.With(logger.Queue(name)),
	}, nil
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Visibility returns the default lease duration.
func (q *Queue) Visibility() time.Duration { return q.visibility }

// DeadLetterQueue returns the configured dead-letter queue, or nil.
func (q *Queue) DeadLetterQueue() *Queue { return q.deadLetter }

// MaxRetries returns the retry maximum, or -1 when no dead-letter queue is set.
// WithMaxRetries has no effect without WithDeadLetterQueue.
func (q *Queue) MaxRetries() int { return q.maxRetries }

// Add enqueues one payload and returns the new message identity.
func (q *Queue) Add(ctx context.Context, payload any, opts ...AddOption) (string, error) {
	ids, err := q.add(ctx, []any{payload}, opts)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddBatch enqueues each payload as an independent message and returns the
// identities in input order. The batch is not atomic: a failure may leave a
// prefix of it enqueued.
func (q *Queue) AddBatch(ctx context.Context, payloads []any, opts ...AddOption) ([]string, error) {
	if len(payloads) == 0 {
		return nil, errors.Join(ErrInvalidArgument, ErrEmptyBatch)
	}
	return q.add(ctx, payloads, opts)
}

func (q *Queue) add(ctx context.Context, payloads []any, opts []AddOption) ([]string, error) {
	o := &addOptions{}
	for _, opt := range opts {
		opt(o)
	}
	delay := q.delay
	if o.delay != nil {
		delay = *o.delay
	}

	now := q.clock.Now()
	visibleAt := now.Add(delay)

	msgs := make([]*Message, 0, len(payloads))
	for i, p := range payloads {
		if p == nil {
			return nil, errors.Join(ErrInvalidArgument, ErrPayloadNil)
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, errors.Join(ErrInvalidArgument, ErrPayloadMarshal,
				fmt.Errorf("payload %d of type %T: %w", i, p, err))
		}
		if bytes.Equal(raw, jsonNull) {
			return nil, errors.Join(ErrInvalidArgument, ErrPayloadNil,
				fmt.Errorf("payload %d of type %T encodes to null", i, p))
		}
		msgs = append(msgs, &Message{
			Payload:   raw,
			VisibleAt: visibleAt,
			CreatedAt: now,
		})
	}

	ids, err := q.store.InsertMany(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to add %d message(s) to queue %q: %w", len(msgs), q.name, err)
	}

	q.logger.DebugContext(ctx, "messages added",
		slog.Int("count", len(ids)),
		slog.Duration("delay", delay))

	return ids, nil
}

// Claim leases the oldest claimable message for the visibility window and
// returns it. It returns (nil, nil) when no message is available.
//
// When a dead-letter queue is configured, a claimed message whose try count
// exceeds the retry maximum is moved there and the claim is repeated, so
// callers never observe an over-retried message. The move is an add on the
// dead-letter queue followed by a finalize here; a crash between the two can
// duplicate the message on the dead-letter queue while it becomes claimable
// again here (at-least-once).
func (q *Queue) Claim(ctx context.Context, opts ...ClaimOption) (*Delivery, error) {
	o := &claimOptions{visibility: q.visibility}
	for _, opt := range opts {
		opt(o)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		token, err := q.tokens()
		if err != nil {
			return nil, errors.Join(ErrTokenGeneration, err)
		}

		now := q.clock.Now()
		msg, err := q.store.ClaimNext(ctx, now, Lease{Token: token, Until: now.Add(o.visibility)})
		if errors.Is(err, ErrNoMatch) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to claim message from queue %q: %w", q.name, err)
		}

		if q.deadLetter == nil || msg.Tries <= q.maxRetries {
			q.logger.DebugContext(ctx, "message claimed",
				logger.MessageID(msg.ID),
				logger.Tries(msg.Tries))
			return toDelivery(msg), nil
		}

		if err := q.moveToDeadLetter(ctx, msg); err != nil {
			return nil, err
		}
	}
}

func (q *Queue) moveToDeadLetter(ctx context.Context, msg *Message) error {
	dl := DeadLetter{ID: msg.ID, Payload: msg.Payload, Tries: msg.Tries}
	dlID, err := q.deadLetter.Add(ctx, dl)
	if err != nil {
		return errors.Join(ErrDeadLetterEnqueue, err)
	}
	if _, err := q.Finalize(ctx, msg.LeaseToken); err != nil {
		// ErrUnknownLease is reserved for Extend and Finalize callers.
		if errors.Is(err, ErrUnknownLease) {
			return fmt.Errorf("%w: lease on message %s expired before it was finalized (dead-letter copy %s)",
				ErrDeadLetterEnqueue, msg.ID, dlID)
		}
		return errors.Join(ErrDeadLetterEnqueue, err)
	}

	q.logger.WarnContext(ctx, "message moved to dead-letter queue",
		logger.MessageID(msg.ID),
		logger.Tries(msg.Tries),
		slog.Int("max_retries", q.maxRetries),
		logger.DeadLetterQueue(q.deadLetter.name),
		slog.String("dead_letter_id", dlID))

	return nil
}

// Extend pushes the lease held by token forward by the visibility window and
// returns the message identity. It fails with ErrUnknownLease when the token
// matches no live lease.
func (q *Queue) Extend(ctx context.Context, token string, opts ...ExtendOption) (string, error) {
	if token == "" {
		return "", errors.Join(ErrUnknownLease, ErrLeaseTokenEmpty)
	}

	o := &extendOptions{visibility: q.visibility}
	for _, opt := range opts {
		opt(o)
	}

	now := q.clock.Now()
	upd := LeaseUpdate{
		VisibleAt:  now.Add(o.visibility),
		ResetTries: o.resetTries,
		ClearToken: o.release,
	}
	if o.release {
		upd.VisibleAt = now
	}

	msg, err := q.store.UpdateLease(ctx, token, now, upd)
	if errors.Is(err, ErrNoMatch) {
		return "", ErrUnknownLease
	}
	if err != nil {
		return "", fmt.Errorf("failed to extend lease in queue %q: %w", q.name, err)
	}

	return msg.ID, nil
}

// Finalize marks the message leased under token as done and returns its
// identity. It fails with ErrUnknownLease when the token matches no live
// lease, including a second Finalize with the same token.
func (q *Queue) Finalize(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.Join(ErrUnknownLease, ErrLeaseTokenEmpty)
	}

	msg, err := q.store.MarkDone(ctx, token, q.clock.Now())
	if errors.Is(err, ErrNoMatch) {
		return "", ErrUnknownLease
	}
	if err != nil {
		return "", fmt.Errorf("failed to finalize message in queue %q: %w", q.name, err)
	}

	q.logger.DebugContext(ctx, "message finalized", logger.MessageID(msg.ID))

	return msg.ID, nil
}

// Clean permanently deletes every done message.
func (q *Queue) Clean(ctx context.Context) error {
	if err := q.store.DeleteDone(ctx); err != nil {
		return fmt.Errorf("failed to clean queue %q: %w", q.name, err)
	}
	return nil
}

// Total counts every message, done or not.
func (q *Queue) Total(ctx context.Context) (int64, error) { return q.count(ctx, FilterAll) }

// Size counts claimable messages (pending or with an expired lease).
func (q *Queue) Size(ctx context.Context) (int64, error) { return q.count(ctx, FilterClaimable) }

// InFlight counts messages under a live lease.
func (q *Queue) InFlight(ctx context.Context) (int64, error) { return q.count(ctx, FilterInFlight) }

// Done counts finalized messages.
func (q *Queue) Done(ctx context.Context) (int64, error) { return q.count(ctx, FilterDone) }

// Stats collects all four counts. The counts are separate reads and may not
// add up under concurrent activity.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var (
		s   Stats
		err error
	)
	if s.Total, err = q.Total(ctx); err != nil {
		return Stats{}, err
	}
	if s.Size, err = q.Size(ctx); err != nil {
		return Stats{}, err
	}
	if s.InFlight, err = q.InFlight(ctx); err != nil {
		return Stats{}, err
	}
	if s.Done, err = q.Done(ctx); err != nil {
		return Stats{}, err
	}
	return s, nil
}

func (q *Queue) count(ctx context.Context, f Filter) (int64, error) {
	n, err := q.store.Count(ctx, f, q.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to count %s messages in queue %q: %w", f, q.name, err)
	}
	return n, nil
}

// EnsureIndexes provisions the store's secondary indexes when it has any.
func (q *Queue) EnsureIndexes(ctx context.Context) error {
	ix, ok := q.store.(Indexer)
	if !ok {
		return nil
	}
	if err := ix.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure indexes for queue %q: %w", q.name, err)
	}
	return nil
}

package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/docqueue/pkg/queue"
)

var _ queue.MessageStore = (*Store)(nil)

// DefaultKeyPrefix namespaces queue keys when no prefix is given.
const DefaultKeyPrefix = "docqueue"

var (
	// ErrClientNil is returned by New without a client.
	ErrClientNil = errors.New("redisstore: client cannot be nil")
	// ErrQueueNameEmpty is returned by New without a queue name.
	ErrQueueNameEmpty = errors.New("redisstore: queue name cannot be empty")
	// ErrMalformedReply is returned when a script reply cannot be decoded.
	ErrMalformedReply = errors.New("redisstore: malformed script reply")
)

// Store implements queue.MessageStore on Redis. Every mutation is one Lua
// script, which Redis runs atomically.
type Store struct {
	client redis.UniversalClient
	prefix string
	base   string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key of the queue.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New returns a store for the named queue.
func New(client redis.UniversalClient, queueName string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, ErrClientNil
	}
	if queueName == "" {
		return nil, ErrQueueNameEmpty
	}

	s := &Store{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	s.base = keyBase(s.prefix, queueName)
	return s, nil
}

// keyBase wraps the queue namespace in a hash tag.
func keyBase(prefix, name string) string {
	return "{" + prefix + ":" + name + "}"
}

// InsertMany implements queue.MessageStore.
func (s *Store) InsertMany(ctx context.Context, msgs []*queue.Message) ([]string, error) {
	args := make([]any, 0, len(msgs)*3)
	for _, m := range msgs {
		if m == nil {
			return nil, errors.New("redisstore: message cannot be nil")
		}
		args = append(args, []byte(m.Payload), m.VisibleAt.UnixMilli(), m.CreatedAt.UnixMilli())
	}

	ids, err := insertScript.Run(ctx, s.client, []string{s.base}, args...).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redisstore: insert: %w", err)
	}
	if len(ids) != len(msgs) {
		return nil, fmt.Errorf("%w: %d ids for %d messages", ErrMalformedReply, len(ids), len(msgs))
	}

	for i, m := range msgs {
		m.ID = ids[i]
	}
	return ids, nil
}

// ClaimNext implements queue.MessageStore. Equal deadlines fall back to the
// zero-padded id, which is insertion order.
func (s *Store) ClaimNext(ctx context.Context, now time.Time, lease queue.Lease) (*queue.Message, error) {
	return s.runMessage(ctx, "claim", claimScript,
		now.UnixMilli(), lease.Token, lease.Until.UnixMilli())
}

// UpdateLease implements queue.MessageStore.
func (s *Store) UpdateLease(ctx context.Context, token string, now time.Time, upd queue.LeaseUpdate) (*queue.Message, error) {
	return s.runMessage(ctx, "update lease", updateLeaseScript,
		now.UnixMilli(), token, upd.VisibleAt.UnixMilli(), flag(upd.ResetTries), flag(upd.ClearToken))
}

// MarkDone implements queue.MessageStore.
func (s *Store) MarkDone(ctx context.Context, token string, now time.Time) (*queue.Message, error) {
	return s.runMessage(ctx, "mark done", markDoneScript, now.UnixMilli(), token)
}

// DeleteDone implements queue.MessageStore.
func (s *Store) DeleteDone(ctx context.Context) error {
	if err := deleteDoneScript.Run(ctx, s.client, []string{s.base}).Err(); err != nil {
		return fmt.Errorf("redisstore: delete done: %w", err)
	}
	return nil
}

// Count implements queue.MessageStore.
func (s *Store) Count(ctx context.Context, f queue.Filter, now time.Time) (int64, error) {
	var (
		n   int64
		err error
	)
	nowMs := strconv.FormatInt(now.UnixMilli(), 10)

	switch f {
	case queue.FilterAll:
		var pending, done *redis.IntCmd
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pending = pipe.ZCard(ctx, s.key("pending"))
			done = pipe.ZCard(ctx, s.key("done"))
			return nil
		})
		if err == nil {
			n = pending.Val() + done.Val()
		}
	case queue.FilterClaimable:
		n, err = s.client.ZCount(ctx, s.key("pending"), "-inf", nowMs).Result()
	case queue.FilterInFlight:
		n, err = s.client.ZCount(ctx, s.key("leased"), "("+nowMs, "+inf").Result()
	case queue.FilterDone:
		n, err = s.client.ZCard(ctx, s.key("done")).Result()
	default:
		return 0, fmt.Errorf("redisstore: %w: %q", queue.ErrInvalidFilter, f)
	}
	if err != nil {
		return 0, fmt.Errorf("redisstore: count %s: %w", f, err)
	}
	return n, nil
}

func (s *Store) key(name string) string {
	return s.base + ":" + name
}

func (s *Store) runMessage(ctx context.Context, op string, script *redis.Script, args ...any) (*queue.Message, error) {
	reply, err := script.Run(ctx, s.client, []string{s.base}, args...).Slice()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, queue.ErrNoMatch
	case err != nil:
		return nil, fmt.Errorf("redisstore: %s: %w", op, err)
	}

	m, err := parseReply(reply)
	if err != nil {
		return nil, fmt.Errorf("redisstore: %s: %w", op, err)
	}
	return m, nil
}

// parseReply decodes an id followed by the HGETALL field/value list.
func parseReply(reply []any) (*queue.Message, error) {
	if len(reply) == 0 || len(reply)%2 == 0 {
		return nil, ErrMalformedReply
	}

	id, ok := reply[0].(string)
	if !ok {
		return nil, ErrMalformedReply
	}
	m := &queue.Message{ID: id}

	for i := 1; i < len(reply); i += 2 {
		field, ok1 := reply[i].(string)
		value, ok2 := reply[i+1].(string)
		if !ok1 || !ok2 {
			return nil, ErrMalformedReply
		}

		switch field {
		case "payload":
			m.Payload = json.RawMessage(value)
		case "token":
			m.LeaseToken = value
		case "tries":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: tries %q", ErrMalformedReply, value)
			}
			m.Tries = n
		case "visible", "done", "created":
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s %q", ErrMalformedReply, field, value)
			}
			t := time.UnixMilli(ms).UTC()
			switch field {
			case "visible":
				m.VisibleAt = t
			case "done":
				m.DoneAt = &t
			default:
				m.CreatedAt = t
			}
		}
	}
	return m, nil
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/docqueue/pkg/pg"
	"github.com/dmitrymomot/docqueue/pkg/queue"
)

var _ queue.MessageStore = (*Store)(nil)

var (
	// ErrDBNil is returned by New without a database handle.
	ErrDBNil = errors.New("pgstore: database cannot be nil")
	// ErrQueueNameEmpty is returned by New without a queue name.
	ErrQueueNameEmpty = errors.New("pgstore: queue name cannot be empty")
	// ErrLeaseTokenInUse is returned when a lease token is already held.
	ErrLeaseTokenInUse = errors.New("pgstore: lease token already in use")
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements queue.MessageStore on the shared queue_messages table.
// Rows are partitioned by queue name.
type Store struct {
	db    DB
	queue string
}

// New returns a store for the named queue.
func New(db DB, queueName string) (*Store, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	if queueName == "" {
		return nil, ErrQueueNameEmpty
	}
	return &Store{db: db, queue: queueName}, nil
}

const returning = `RETURNING id, payload, visible_at, lease_token, tries, done_at, created_at`

const (
	insertSQL = `INSERT INTO queue_messages (queue, payload, visible_at, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`

	claimSQL = `UPDATE queue_messages
SET tries = tries + 1, lease_token = $3, visible_at = $4
WHERE id = (
	SELECT id FROM queue_messages
	WHERE queue = $1 AND done_at IS NULL AND visible_at <= $2
	ORDER BY visible_at, id
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
` + returning

	updateLeaseSQL = `UPDATE queue_messages
SET visible_at = $4,
	tries = CASE WHEN $5::boolean THEN 0 ELSE tries END,
	lease_token = CASE WHEN $6::boolean THEN NULL ELSE lease_token END
WHERE queue = $1 AND lease_token = $2 AND done_at IS NULL AND visible_at > $3
` + returning

	markDoneSQL = `UPDATE queue_messages
SET done_at = $3, visible_at = NULL, lease_token = NULL
WHERE queue = $1 AND lease_token = $2 AND done_at IS NULL AND visible_at > $3
` + returning

	deleteDoneSQL = `DELETE FROM queue_messages WHERE queue = $1 AND done_at IS NOT NULL`
)

var countSQL = map[queue.Filter]string{
	queue.FilterAll:       `SELECT count(*) FROM queue_messages WHERE queue = $1`,
	queue.FilterClaimable: `SELECT count(*) FROM queue_messages WHERE queue = $1 AND done_at IS NULL AND visible_at <= $2`,
	queue.FilterInFlight:  `SELECT count(*) FROM queue_messages WHERE queue = $1 AND done_at IS NULL AND lease_token IS NOT NULL AND visible_at > $2`,
	queue.FilterDone:      `SELECT count(*) FROM queue_messages WHERE queue = $1 AND done_at IS NOT NULL`,
}

// InsertMany implements queue.MessageStore. The batch runs in one
// transaction so either every message is stored or none is.
func (s *Store) InsertMany(ctx context.Context, msgs []*queue.Message) ([]string, error) {
	for _, m := range msgs {
		if m == nil {
			return nil, errors.New("pgstore: message cannot be nil")
		}
	}

	ids := make([]string, 0, len(msgs))
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, m := range msgs {
			batch.Queue(insertSQL, s.queue, []byte(m.Payload), m.VisibleAt, m.CreatedAt)
		}

		br := tx.SendBatch(ctx, batch)
		for range msgs {
			var id int64
			if err := br.QueryRow().Scan(&id); err != nil {
				_ = br.Close()
				return err
			}
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		return br.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: insert: %w", err)
	}

	for i, m := range msgs {
		m.ID = ids[i]
	}
	return ids, nil
}

// ClaimNext implements queue.MessageStore. Concurrent claimers skip rows
// locked by each other instead of waiting.
func (s *Store) ClaimNext(ctx context.Context, now time.Time, lease queue.Lease) (*queue.Message, error) {
	return s.queryMessage(ctx, "claim", claimSQL, s.queue, now, lease.Token, lease.Until)
}

// UpdateLease implements queue.MessageStore.
func (s *Store) UpdateLease(ctx context.Context, token string, now time.Time, upd queue.LeaseUpdate) (*queue.Message, error) {
	return s.queryMessage(ctx, "update lease", updateLeaseSQL,
		s.queue, token, now, upd.VisibleAt, upd.ResetTries, upd.ClearToken)
}

// MarkDone implements queue.MessageStore.
func (s *Store) MarkDone(ctx context.Context, token string, now time.Time) (*queue.Message, error) {
	return s.queryMessage(ctx, "mark done", markDoneSQL, s.queue, token, now)
}

// DeleteDone implements queue.MessageStore.
func (s *Store) DeleteDone(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, deleteDoneSQL, s.queue); err != nil {
		return fmt.Errorf("pgstore: delete done: %w", err)
	}
	return nil
}

// Count implements queue.MessageStore.
func (s *Store) Count(ctx context.Context, f queue.Filter, now time.Time) (int64, error) {
	query, ok := countSQL[f]
	if !ok {
		return 0, fmt.Errorf("pgstore: %w: %q", queue.ErrInvalidFilter, f)
	}

	args := []any{s.queue}
	if f == queue.FilterClaimable || f == queue.FilterInFlight {
		args = append(args, now)
	}

	var n int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgstore: count %s: %w", f, err)
	}
	return n, nil
}

func (s *Store) queryMessage(ctx context.Context, op, query string, args ...any) (*queue.Message, error) {
	m, err := scanMessage(s.db.QueryRow(ctx, query, args...))
	switch {
	case pg.IsNotFoundError(err):
		return nil, queue.ErrNoMatch
	case pg.IsDuplicateKeyError(err):
		return nil, fmt.Errorf("%w: %s: %w", ErrLeaseTokenInUse, op, err)
	case err != nil:
		return nil, fmt.Errorf("pgstore: %s: %w", op, err)
	}
	return m, nil
}

func scanMessage(row pgx.Row) (*queue.Message, error) {
	var (
		id        int64
		payload   []byte
		visibleAt *time.Time
		token     *string
		tries     int
		doneAt    *time.Time
		createdAt time.Time
	)
	if err := row.Scan(&id, &payload, &visibleAt, &token, &tries, &doneAt, &createdAt); err != nil {
		return nil, err
	}

	m := &queue.Message{
		ID:        strconv.FormatInt(id, 10),
		Payload:   json.RawMessage(payload),
		Tries:     tries,
		CreatedAt: createdAt.UTC(),
	}
	if visibleAt != nil {
		m.VisibleAt = visibleAt.UTC()
	}
	if token != nil {
		m.LeaseToken = *token
	}
	if doneAt != nil {
		done := doneAt.UTC()
		m.DoneAt = &done
	}
	return m, nil
}

package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/docqueue/pkg/queue"
)

// Field names of a stored message.
const (
	fieldID      = "_id"
	fieldVisible = "visible"
	fieldAck     = "ack"
	fieldTries   = "tries"
	fieldDeleted = "deleted"
)

var (
	_ queue.MessageStore = (*Store)(nil)
	_ queue.Indexer      = (*Store)(nil)
)

// ErrCollectionNil is returned by New without a collection.
var ErrCollectionNil = errors.New("mongostore: collection cannot be nil")

// Store implements queue.MessageStore on one MongoDB collection.
// Every queue owns its own collection.
type Store struct {
	coll    *mongo.Collection
	doneTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithDoneTTL lets MongoDB remove done messages d after they were finalized.
// The TTL is part of the index built by EnsureIndexes.
func WithDoneTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.doneTTL = d
		}
	}
}

// New returns a store backed by coll.
func New(coll *mongo.Collection, opts ...Option) (*Store, error) {
	if coll == nil {
		return nil, ErrCollectionNil
	}
	s := &Store{coll: coll}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type document struct {
	ID      bson.ObjectID `bson:"_id"`
	Payload []byte        `bson:"payload"`
	Visible *time.Time    `bson:"visible,omitempty"`
	Ack     string        `bson:"ack,omitempty"`
	Tries   int           `bson:"tries"`
	Deleted *time.Time    `bson:"deleted,omitempty"`
	Created time.Time     `bson:"created"`
}

func (d *document) message() *queue.Message {
	m := &queue.Message{
		ID:         d.ID.Hex(),
		Payload:    json.RawMessage(d.Payload),
		LeaseToken: d.Ack,
		Tries:      d.Tries,
		CreatedAt:  d.Created.UTC(),
	}
	if d.Visible != nil {
		m.VisibleAt = d.Visible.UTC()
	}
	if d.Deleted != nil {
		done := d.Deleted.UTC()
		m.DoneAt = &done
	}
	return m
}

// InsertMany implements queue.MessageStore. Object ids are generated client
// side so that their order matches the batch order.
func (s *Store) InsertMany(ctx context.Context, msgs []*queue.Message) ([]string, error) {
	docs := make([]any, 0, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			return nil, errors.New("mongostore: message cannot be nil")
		}
		visible := m.VisibleAt
		docs = append(docs, &document{
			ID:      bson.NewObjectID(),
			Payload: []byte(m.Payload),
			Visible: &visible,
			Created: m.CreatedAt,
		})
	}

	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return nil, fmt.Errorf("mongostore: insert: %w", err)
	}

	for i, m := range msgs {
		id := docs[i].(*document).ID.Hex()
		m.ID = id
		ids = append(ids, id)
	}
	return ids, nil
}

// ClaimNext implements queue.MessageStore with a single findOneAndUpdate.
func (s *Store) ClaimNext(ctx context.Context, now time.Time, lease queue.Lease) (*queue.Message, error) {
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: fieldTries, Value: 1}}},
		{Key: "$set", Value: bson.D{
			{Key: fieldAck, Value: lease.Token},
			{Key: fieldVisible, Value: lease.Until},
		}},
	}
	opts := options.FindOneAndUpdate().
		SetSort(claimSort()).
		SetReturnDocument(options.After)

	return s.findOneAndUpdate(ctx, "claim", claimFilter(now), update, opts)
}

// UpdateLease implements queue.MessageStore.
func (s *Store) UpdateLease(ctx context.Context, token string, now time.Time, upd queue.LeaseUpdate) (*queue.Message, error) {
	set := bson.D{{Key: fieldVisible, Value: upd.VisibleAt}}
	if upd.ResetTries {
		set = append(set, bson.E{Key: fieldTries, Value: 0})
	}
	update := bson.D{{Key: "$set", Value: set}}
	if upd.ClearToken {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: fieldAck, Value: ""}}})
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	return s.findOneAndUpdate(ctx, "update lease", liveLeaseFilter(token, now), update, opts)
}

// MarkDone implements queue.MessageStore.
func (s *Store) MarkDone(ctx context.Context, token string, now time.Time) (*queue.Message, error) {
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: fieldDeleted, Value: now}}},
		{Key: "$unset", Value: bson.D{
			{Key: fieldVisible, Value: ""},
			{Key: fieldAck, Value: ""},
		}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	return s.findOneAndUpdate(ctx, "mark done", liveLeaseFilter(token, now), update, opts)
}

// DeleteDone implements queue.MessageStore.
func (s *Store) DeleteDone(ctx context.Context) error {
	if _, err := s.coll.DeleteMany(ctx, countFilter(queue.FilterDone, time.Time{})); err != nil {
		return fmt.Errorf("mongostore: delete done: %w", err)
	}
	return nil
}

// Count implements queue.MessageStore.
func (s *Store) Count(ctx context.Context, f queue.Filter, now time.Time) (int64, error) {
	if !f.Valid() {
		return 0, fmt.Errorf("mongostore: %w: %q", queue.ErrInvalidFilter, f)
	}
	n, err := s.coll.CountDocuments(ctx, countFilter(f, now))
	if err != nil {
		return 0, fmt.Errorf("mongostore: count %s: %w", f, err)
	}
	return n, nil
}

// EnsureIndexes implements queue.Indexer.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.coll.Indexes().CreateMany(ctx, indexModels(s.doneTTL)); err != nil {
		return fmt.Errorf("mongostore: create indexes: %w", err)
	}
	return nil
}

func (s *Store) findOneAndUpdate(ctx context.Context, op string, filter, update bson.D, opts *options.FindOneAndUpdateOptionsBuilder) (*queue.Message, error) {
	var doc document
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, queue.ErrNoMatch
	case err != nil:
		return nil, fmt.Errorf("mongostore: %s: %w", op, err)
	}
	return doc.message(), nil
}

func claimFilter(now time.Time) bson.D {
	return bson.D{
		{Key: fieldDeleted, Value: bson.D{{Key: "$exists", Value: false}}},
		{Key: fieldVisible, Value: bson.D{{Key: "$lte", Value: now}}},
	}
}

func claimSort() bson.D {
	return bson.D{
		{Key: fieldVisible, Value: 1},
		{Key: fieldID, Value: 1},
	}
}

func liveLeaseFilter(token string, now time.Time) bson.D {
	return bson.D{
		{Key: fieldAck, Value: token},
		{Key: fieldVisible, Value: bson.D{{Key: "$gt", Value: now}}},
		{Key: fieldDeleted, Value: bson.D{{Key: "$exists", Value: false}}},
	}
}

func countFilter(f queue.Filter, now time.Time) bson.D {
	switch f {
	case queue.FilterClaimable:
		return claimFilter(now)
	case queue.FilterInFlight:
		// $gt "" instead of $exists so the partial {visible, ack} index is used.
		return bson.D{
			{Key: fieldAck, Value: bson.D{{Key: "$gt", Value: ""}}},
			{Key: fieldVisible, Value: bson.D{{Key: "$gt", Value: now}}},
		}
	case queue.FilterDone:
		return bson.D{{Key: fieldDeleted, Value: bson.D{{Key: "$exists", Value: true}}}}
	default:
		return bson.D{}
	}
}

func indexModels(doneTTL time.Duration) []mongo.IndexModel {
	deleted := options.Index().SetSparse(true)
	if doneTTL > 0 {
		deleted.SetExpireAfterSeconds(ttlSeconds(doneTTL))
	}

	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: fieldVisible, Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: fieldAck, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: fieldDeleted, Value: 1}},
			Options: deleted,
		},
		{
			Keys: bson.D{{Key: fieldVisible, Value: 1}, {Key: fieldAck, Value: 1}},
			Options: options.Index().SetPartialFilterExpression(bson.D{
				{Key: fieldVisible, Value: bson.D{{Key: "$exists", Value: true}}},
				{Key: fieldAck, Value: bson.D{{Key: "$exists", Value: true}}},
			}),
		},
	}
}

// ttlSeconds converts d to whole seconds for expireAfterSeconds, rounding up
// so that a positive TTL never becomes 0 (immediate expiry).
func ttlSeconds(d time.Duration) int32 {
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	if secs > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(secs)
}

// Package queuetest provides a behaviour suite for queue.MessageStore
// implementations. Every store in this module runs it; third-party stores can
// run it too.
package queuetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/docqueue/pkg/queue"
)

// StoreFactory returns an empty store. It is called once per subtest.
type StoreFactory func(t *testing.T) queue.MessageStore

// RunStoreSuite runs the behaviour suite against stores built by newStore.
func RunStoreSuite(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("insert assigns ordered unique ids", func(t *testing.T) {
		s := newStore(t)
		base := Now()

		msgs := NewMessages(base, `"a"`, `"b"`, `"c"`)
		ids, err := s.InsertMany(context.Background(), msgs)
		require.NoError(t, err)
		require.Len(t, ids, 3)

		seen := map[string]bool{}
		for i, id := range ids {
			assert.NotEmpty(t, id)
			assert.Equal(t, id, msgs[i].ID, "InsertMany must set Message.ID")
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})

	t.Run("claim on empty store returns ErrNoMatch", func(t *testing.T) {
		s := newStore(t)
		base := Now()

		msg, err := s.ClaimNext(context.Background(), base, queue.Lease{Token: "t1", Until: base.Add(time.Minute)})
		assert.ErrorIs(t, err, queue.ErrNoMatch)
		assert.Nil(t, msg)
	})

	t.Run("claim leases the message", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		ids := insert(t, s, base, `{"n":1}`)

		until := base.Add(time.Minute)
		msg, err := s.ClaimNext(context.Background(), base, queue.Lease{Token: "t1", Until: until})
		require.NoError(t, err)
		require.NotNil(t, msg)

		assert.Equal(t, ids[0], msg.ID)
		assert.Equal(t, "t1", msg.LeaseToken)
		assert.Equal(t, 1, msg.Tries)
		assert.True(t, until.Equal(msg.VisibleAt), "visible_at %s, want %s", msg.VisibleAt, until)
		assert.JSONEq(t, `{"n":1}`, string(msg.Payload))
		assert.Nil(t, msg.DoneAt)
		assert.Equal(t, queue.StateLeased, msg.State(base))
	})

	t.Run("claim skips messages that are not visible yet", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		_, err := s.InsertMany(context.Background(), NewMessages(base.Add(time.Minute), `"later"`))
		require.NoError(t, err)

		_, err = s.ClaimNext(context.Background(), base, queue.Lease{Token: "t1", Until: base.Add(time.Minute)})
		assert.ErrorIs(t, err, queue.ErrNoMatch)

		msg, err := s.ClaimNext(context.Background(), base.Add(time.Minute), queue.Lease{Token: "t2", Until: base.Add(2 * time.Minute)})
		require.NoError(t, err)
		assert.JSONEq(t, `"later"`, string(msg.Payload))
	})

	t.Run("claim order is oldest visible first then insertion order", func(t *testing.T) {
		s := newStore(t)
		base := Now()

		late, err := s.InsertMany(context.Background(), NewMessages(base.Add(-time.Second), `"late"`))
		require.NoError(t, err)
		early, err := s.InsertMany(context.Background(), NewMessages(base.Add(-time.Minute), `"early-1"`, `"early-2"`, `"early-3"`))
		require.NoError(t, err)

		want := append(append([]string{}, early...), late...)
		for i, id := range want {
			msg, err := s.ClaimNext(context.Background(), base, queue.Lease{Token: fmt.Sprintf("t%d", i), Until: base.Add(time.Hour)})
			require.NoError(t, err)
			assert.Equal(t, id, msg.ID, "claim #%d", i)
		}

		_, err = s.ClaimNext(context.Background(), base, queue.Lease{Token: "tx", Until: base.Add(time.Hour)})
		assert.ErrorIs(t, err, queue.ErrNoMatch)
	})

	t.Run("expired lease is claimable again", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		ids := insert(t, s, base, `"x"`)

		_, err := s.ClaimNext(context.Background(), base, queue.Lease{Token: "t1", Until: base.Add(3 * time.Second)})
		require.NoError(t, err)

		_, err = s.ClaimNext(context.Background(), base.Add(time.Second), queue.Lease{Token: "t2", Until: base.Add(4 * time.Second)})
		assert.ErrorIs(t, err, queue.ErrNoMatch, "live lease must not be claimable")

		later := base.Add(3 * time.Second)
		msg, err := s.ClaimNext(context.Background(), later, queue.Lease{Token: "t3", Until: later.Add(3 * time.Second)})
		require.NoError(t, err)
		assert.Equal(t, ids[0], msg.ID)
		assert.Equal(t, 2, msg.Tries)
		assert.Equal(t, "t3", msg.LeaseToken)

		_, err = s.MarkDone(context.Background(), "t1", later)
		assert.ErrorIs(t, err, queue.ErrNoMatch, "old token must not finalize a reclaimed message")
	})

	t.Run("update lease pushes the deadline", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		claim(t, s, base, "t1", 3*time.Second, `"x"`)

		newDeadline := base.Add(10 * time.Second)
		msg, err := s.UpdateLease(context.Background(), "t1", base.Add(time.Second), queue.LeaseUpdate{VisibleAt: newDeadline})
		require.NoError(t, err)
		assert.True(t, newDeadline.Equal(msg.VisibleAt))
		assert.Equal(t, "t1", msg.LeaseToken)
		assert.Equal(t, 1, msg.Tries)

		_, err = s.ClaimNext(context.Background(), base.Add(5*time.Second), queue.Lease{Token: "t2", Until: base.Add(time.Hour)})
		assert.ErrorIs(t, err, queue.ErrNoMatch, "extended lease must not be claimable")
	})

	t.Run("update lease resets tries", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		claim(t, s, base, "t1", 3*time.Second, `"x"`)

		msg, err := s.UpdateLease(context.Background(), "t1", base, queue.LeaseUpdate{VisibleAt: base.Add(3 * time.Second), ResetTries: true})
		require.NoError(t, err)
		assert.Equal(t, 0, msg.Tries)
	})

	t.Run("update lease with cleared token releases the message", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		claim(t, s, base, "t1", time.Minute, `"x"`)

		msg, err := s.UpdateLease(context.Background(), "t1", base, queue.LeaseUpdate{VisibleAt: base, ClearToken: true})
		require.NoError(t, err)
		assert.Empty(t, msg.LeaseToken)
		assert.Equal(t, queue.StatePending, msg.State(base))

		_, err = s.UpdateLease(context.Background(), "t1", base, queue.LeaseUpdate{VisibleAt: base.Add(time.Minute)})
		assert.ErrorIs(t, err, queue.ErrNoMatch, "released token must be unknown")

		again, err := s.ClaimNext(context.Background(), base, queue.Lease{Token: "t2", Until: base.Add(time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, msg.ID, again.ID)
		assert.Equal(t, 2, again.Tries)
	})

	t.Run("update lease fails for unknown or expired token", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		claim(t, s, base, "t1", 3*time.Second, `"x"`)

		_, err := s.UpdateLease(context.Background(), "nope", base, queue.LeaseUpdate{VisibleAt: base.Add(time.Minute)})
		assert.ErrorIs(t, err, queue.ErrNoMatch)

		_, err = s.UpdateLease(context.Background(), "t1", base.Add(3*time.Second), queue.LeaseUpdate{VisibleAt: base.Add(time.Minute)})
		assert.ErrorIs(t, err, queue.ErrNoMatch, "lease expiring exactly now is no longer live")
	})

	t.Run("mark done is terminal", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		id := claim(t, s, base, "t1", time.Minute, `"x"`)

		msg, err := s.MarkDone(context.Background(), "t1", base.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, id, msg.ID)
		require.NotNil(t, msg.DoneAt)
		assert.Empty(t, msg.LeaseToken)
		assert.True(t, msg.VisibleAt.IsZero())
		assert.Equal(t, queue.StateDone, msg.State(base))

		_, err = s.MarkDone(context.Background(), "t1", base.Add(time.Second))
		assert.ErrorIs(t, err, queue.ErrNoMatch, "second finalize must fail")

		_, err = s.UpdateLease(context.Background(), "t1", base.Add(time.Second), queue.LeaseUpdate{VisibleAt: base.Add(time.Hour)})
		assert.ErrorIs(t, err, queue.ErrNoMatch)

		_, err = s.ClaimNext(context.Background(), base.Add(time.Hour), queue.Lease{Token: "t2", Until: base.Add(2 * time.Hour)})
		assert.ErrorIs(t, err, queue.ErrNoMatch, "done message must never be claimable")
	})

	t.Run("mark done fails after lease expiry", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		claim(t, s, base, "t1", time.Second, `"x"`)

		_, err := s.MarkDone(context.Background(), "t1", base.Add(2*time.Second))
		assert.ErrorIs(t, err, queue.ErrNoMatch)
	})

	t.Run("counts follow the state model", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		ctx := context.Background()

		insert(t, s, base, `"a"`, `"b"`, `"c"`, `"d"`)
		_, err := s.InsertMany(ctx, NewMessages(base.Add(time.Hour), `"delayed"`))
		require.NoError(t, err)

		_, err = s.ClaimNext(ctx, base, queue.Lease{Token: "live", Until: base.Add(time.Minute)})
		require.NoError(t, err)
		_, err = s.ClaimNext(ctx, base, queue.Lease{Token: "short", Until: base.Add(time.Second)})
		require.NoError(t, err)
		_, err = s.ClaimNext(ctx, base, queue.Lease{Token: "done", Until: base.Add(time.Minute)})
		require.NoError(t, err)
		_, err = s.MarkDone(ctx, "done", base)
		require.NoError(t, err)

		at := base.Add(2 * time.Second)
		assertCount(t, s, queue.FilterAll, at, 5)
		assertCount(t, s, queue.FilterClaimable, at, 2) // "d" and the expired "short" lease
		assertCount(t, s, queue.FilterInFlight, at, 1)
		assertCount(t, s, queue.FilterDone, at, 1)
	})

	t.Run("delete done only removes done messages and is idempotent", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		ctx := context.Background()

		insert(t, s, base, `"a"`, `"b"`)
		claim(t, s, base, "t1", time.Minute, `"c"`)
		_, err := s.MarkDone(ctx, "t1", base)
		require.NoError(t, err)

		require.NoError(t, s.DeleteDone(ctx))
		assertCount(t, s, queue.FilterAll, base, 2)
		assertCount(t, s, queue.FilterDone, base, 0)

		require.NoError(t, s.DeleteDone(ctx))
		assertCount(t, s, queue.FilterAll, base, 2)
	})

	t.Run("concurrent claims never share a message", func(t *testing.T) {
		s := newStore(t)
		base := Now()
		const n = 20

		payloads := make([]string, n)
		for i := range payloads {
			payloads[i] = fmt.Sprintf(`{"i":%d}`, i)
		}
		insert(t, s, base, payloads...)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed = map[string]int{}
			errs    []error
		)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				msg, err := s.ClaimNext(context.Background(), base, queue.Lease{
					Token: fmt.Sprintf("token-%d", i),
					Until: base.Add(time.Minute),
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				claimed[msg.ID]++
			}()
		}
		wg.Wait()

		require.Empty(t, errs)
		assert.Len(t, claimed, n)
		for id, c := range claimed {
			assert.Equal(t, 1, c, "message %s claimed %d times", id, c)
		}
	})
}

// Now returns the current time at millisecond precision, the finest
// resolution every store keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewMessages builds pending messages visible at visibleAt from raw JSON payloads.
func NewMessages(visibleAt time.Time, payloads ...string) []*queue.Message {
	msgs := make([]*queue.Message, 0, len(payloads))
	for _, p := range payloads {
		msgs = append(msgs, &queue.Message{
			Payload:   json.RawMessage(p),
			VisibleAt: visibleAt,
			CreatedAt: visibleAt,
		})
	}
	return msgs
}

func insert(t *testing.T, s queue.MessageStore, visibleAt time.Time, payloads ...string) []string {
	t.Helper()
	ids, err := s.InsertMany(context.Background(), NewMessages(visibleAt, payloads...))
	require.NoError(t, err)
	require.Len(t, ids, len(payloads))
	return ids
}

func claim(t *testing.T, s queue.MessageStore, now time.Time, token string, lease time.Duration, payload string) string {
	t.Helper()
	ids := insert(t, s, now, payload)
	msg, err := s.ClaimNext(context.Background(), now, queue.Lease{Token: token, Until: now.Add(lease)})
	require.NoError(t, err)
	require.Equal(t, ids[0], msg.ID)
	return msg.ID
}

func assertCount(t *testing.T, s queue.MessageStore, f queue.Filter, now time.Time, want int64) {
	t.Helper()
	got, err := s.Count(context.Background(), f, now)
	require.NoError(t, err)
	assert.Equal(t, want, got, "count(%s)", f)
}

package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements MessageStore in process memory for testing and
// local development. A single mutex makes every operation atomic.
type MemoryStorage struct {
	mu       sync.RWMutex
	messages map[string]*memoryEntry

	// Indexes for efficient queries
	order   []string          // insertion order of stored ids
	byToken map[string]string // lease token -> id
	seq     uint64
}

type memoryEntry struct {
	msg Message
	seq uint64
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[string]*memoryEntry),
		byToken:  make(map[string]string),
	}
}

// InsertMany implements MessageStore
func (ms *MemoryStorage) InsertMany(ctx context.Context, msgs []*Message) ([]string, error) {
	for _, m := range msgs {
		if m == nil {
			return nil, errors.New("message cannot be nil")
		}
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ms.seq++
		id := uuid.NewString()

		// Clone message to prevent external modifications
		entry := &memoryEntry{msg: cloneMessage(m), seq: ms.seq}
		entry.msg.ID = id
		entry.msg.LeaseToken = ""
		entry.msg.DoneAt = nil
		entry.msg.Tries = 0

		ms.messages[id] = entry
		ms.order = append(ms.order, id)
		m.ID = id
		ids = append(ids, id)
	}

	return ids, nil
}

// ClaimNext implements MessageStore
func (ms *MemoryStorage) ClaimNext(ctx context.Context, now time.Time, lease Lease) (*Message, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var best *memoryEntry
	for _, id := range ms.order {
		e := ms.messages[id]
		if !e.msg.Claimable(now) {
			continue
		}
		// Oldest deadline first, insertion order breaks ties
		if best == nil ||
			e.msg.VisibleAt.Before(best.msg.VisibleAt) ||
			(e.msg.VisibleAt.Equal(best.msg.VisibleAt) && e.seq < best.seq) {
			best = e
		}
	}

	if best == nil {
		return nil, ErrNoMatch
	}

	if best.msg.LeaseToken != "" {
		delete(ms.byToken, best.msg.LeaseToken)
	}
	best.msg.Tries++
	best.msg.LeaseToken = lease.Token
	best.msg.VisibleAt = lease.Until
	ms.byToken[lease.Token] = best.msg.ID

	// Return a copy to prevent external modifications
	out := cloneMessage(&best.msg)
	return &out, nil
}

// UpdateLease implements MessageStore
func (ms *MemoryStorage) UpdateLease(ctx context.Context, token string, now time.Time, upd LeaseUpdate) (*Message, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.liveLease(token, now)
	if !ok {
		return nil, ErrNoMatch
	}

	e.msg.VisibleAt = upd.VisibleAt
	if upd.ResetTries {
		e.msg.Tries = 0
	}
	if upd.ClearToken {
		delete(ms.byToken, token)
		e.msg.LeaseToken = ""
	}

	out := cloneMessage(&e.msg)
	return &out, nil
}

// MarkDone implements MessageStore
func (ms *MemoryStorage) MarkDone(ctx context.Context, token string, now time.Time) (*Message, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.liveLease(token, now)
	if !ok {
		return nil, ErrNoMatch
	}

	doneAt := now
	e.msg.DoneAt = &doneAt
	e.msg.LeaseToken = ""
	e.msg.VisibleAt = time.Time{}
	delete(ms.byToken, token)

	out := cloneMessage(&e.msg)
	return &out, nil
}

// DeleteDone implements MessageStore
func (ms *MemoryStorage) DeleteDone(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.order = slices.DeleteFunc(ms.order, func(id string) bool {
		if ms.messages[id].msg.DoneAt == nil {
			return false
		}
		delete(ms.messages, id)
		return true
	})

	return nil
}

// Count implements MessageStore
func (ms *MemoryStorage) Count(ctx context.Context, f Filter, now time.Time) (int64, error) {
	if !f.Valid() {
		return 0, ErrInvalidFilter
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var n int64
	for _, e := range ms.messages {
		if e.msg.Matches(f, now) {
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the stored message with the given id.
func (ms *MemoryStorage) Get(id string) (Message, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	e, ok := ms.messages[id]
	if !ok {
		return Message{}, false
	}
	return cloneMessage(&e.msg), true
}

// liveLease finds the not-done message holding token with an unexpired lease.
// Must be called with the mutex held.
func (ms *MemoryStorage) liveLease(token string, now time.Time) (*memoryEntry, bool) {
	id, ok := ms.byToken[token]
	if !ok {
		return nil, false
	}
	e := ms.messages[id]
	if e == nil || e.msg.DoneAt != nil || !e.msg.VisibleAt.After(now) {
		return nil, false
	}
	return e, true
}

func cloneMessage(m *Message) Message {
	c := *m
	c.Payload = slices.Clone(m.Payload)
	if m.DoneAt != nil {
		d := *m.DoneAt
		c.DoneAt = &d
	}
	return c
}

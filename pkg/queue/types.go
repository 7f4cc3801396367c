package queue

import (
	"encoding/json"
	"time"
)

// Default queue settings, used when no option overrides them.
const (
	DefaultVisibility = 30 * time.Second
	DefaultMaxRetries = 5
)

// State is the derived lifecycle state of a message.
// It is never stored; see Message.State.
type State string

const (
	StatePending State = "pending"
	StateLeased  State = "leased"
	StateDone    State = "done"
)

// Filter selects a subset of messages for counting.
type Filter string

const (
	// FilterAll matches every message, done or not.
	FilterAll Filter = "all"
	// FilterClaimable matches pending and expired-leased messages.
	FilterClaimable Filter = "claimable"
	// FilterInFlight matches messages with a lease that has not expired yet.
	FilterInFlight Filter = "in_flight"
	// FilterDone matches finalized messages.
	FilterDone Filter = "done"
)

// Valid reports whether f is one of the known filters.
func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterClaimable, FilterInFlight, FilterDone:
		return true
	}
	return false
}

// Message is the persisted unit of work.
//
// VisibleAt is both the initial availability time and the lease deadline while
// the message is claimed. It is zero once the message is done.
type Message struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	VisibleAt  time.Time       `json:"visible_at,omitzero"`
	LeaseToken string          `json:"lease_token,omitempty"`
	Tries      int             `json:"tries"`
	DoneAt     *time.Time      `json:"done_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// State derives the lifecycle state of the message at the given instant.
// An expired lease reports StatePending: it is claimable again.
func (m *Message) State(now time.Time) State {
	switch {
	case m.DoneAt != nil:
		return StateDone
	case m.LeaseToken != "" && m.VisibleAt.After(now):
		return StateLeased
	default:
		return StatePending
	}
}

// Claimable reports whether the message matches the claim predicate at now:
// not done and visible at or before now.
func (m *Message) Claimable(now time.Time) bool {
	return m.DoneAt == nil && !m.VisibleAt.After(now)
}

// Matches reports whether the message satisfies the count filter at now.
func (m *Message) Matches(f Filter, now time.Time) bool {
	switch f {
	case FilterAll:
		return true
	case FilterClaimable:
		return m.Claimable(now)
	case FilterInFlight:
		return m.DoneAt == nil && m.LeaseToken != "" && m.VisibleAt.After(now)
	case FilterDone:
		return m.DoneAt != nil
	}
	return false
}

// Delivery is the view of a claimed message handed to a worker.
// The LeaseToken authorizes Extend and Finalize for this claim only.
type Delivery struct {
	ID         string          `json:"id"`
	LeaseToken string          `json:"lease_token"`
	Payload    json.RawMessage `json:"payload"`
	Tries      int             `json:"tries"`
}

// Decode unmarshals the delivery payload into v.
func (d *Delivery) Decode(v any) error {
	return json.Unmarshal(d.Payload, v)
}

// DeadLetter is the payload enqueued on a dead-letter queue when a message
// exceeds its retry budget. It keeps the original identity and try count.
type DeadLetter struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
	Tries   int             `json:"tries"`
}

// Stats holds the message counts of a queue at one instant.
type Stats struct {
	Total    int64 `json:"total"`
	Size     int64 `json:"size"`
	InFlight int64 `json:"in_flight"`
	Done     int64 `json:"done"`
}

func toDelivery(m *Message) *Delivery {
	return &Delivery{
		ID:         m.ID,
		LeaseToken: m.LeaseToken,
		Payload:    m.Payload,
		Tries:      m.Tries,
	}
}

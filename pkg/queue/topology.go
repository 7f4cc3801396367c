package queue

import (
	"errors"
	"fmt"
)

// Topology declares a set of named queues and their dead-letter relations.
type Topology struct {
	Queues []Config `yaml:"queues"`
}

// StoreFactory returns the store backing the named queue.
type StoreFactory func(name string) (MessageStore, error)

// Build creates every declared queue. Dead-letter targets are built before
// the queues that reference them, so each Queue holds a direct reference to
// its dead-letter Queue. extra options are applied to every queue after the
// declared settings.
func (t Topology) Build(stores StoreFactory, extra ...Option) (map[string]*Queue, error) {
	if stores == nil {
		return nil, errors.Join(ErrInvalidConfiguration, ErrStoreNil)
	}

	decl := make(map[string]Config, len(t.Queues))
	for _, c := range t.Queues {
		if c.Name == "" {
			return nil, errors.Join(ErrInvalidConfiguration, ErrNameEmpty)
		}
		if _, dup := decl[c.Name]; dup {
			return nil, errors.Join(ErrInvalidConfiguration, ErrDuplicateQueue, fmt.Errorf("queue %q", c.Name))
		}
		decl[c.Name] = c
	}

	const (
		unvisited = iota
		visiting
		built
	)
	state := make(map[string]int, len(decl))
	queues := make(map[string]*Queue, len(decl))

	var build func(name string) error
	build = func(name string) error {
		switch state[name] {
		case built:
			return nil
		case visiting:
			return errors.Join(ErrInvalidConfiguration, ErrDeadLetterCycle, fmt.Errorf("queue %q", name))
		}
		state[name] = visiting

		c := decl[name]
		opts := c.Options()
		if c.DeadLetterQueue != "" {
			if _, ok := decl[c.DeadLetterQueue]; !ok {
				return errors.Join(ErrInvalidConfiguration, ErrUnknownDeadLetterQueue,
					fmt.Errorf("queue %q references %q", name, c.DeadLetterQueue))
			}
			if err := build(c.DeadLetterQueue); err != nil {
				return err
			}
			opts = append(opts, WithDeadLetterQueue(queues[c.DeadLetterQueue]))
		}
		opts = append(opts, extra...)

		store, err := stores(name)
		if err != nil {
			return fmt.Errorf("failed to open store for queue %q: %w", name, err)
		}
		q, err := New(store, name, opts...)
		if err != nil {
			return err
		}

		queues[name] = q
		state[name] = built
		return nil
	}

	for _, c := range t.Queues {
		if err := build(c.Name); err != nil {
			return nil, err
		}
	}

	return queues, nil
}

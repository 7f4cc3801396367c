package queue

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Queue
type Option func(*options)

type options struct {
	visibility time.Duration
	delay      time.Duration
	deadLetter *Queue
	maxRetries int
	clock      Clock
	tokens     TokenGenerator
	logger     *slog.Logger
}

// WithVisibility sets the default lease duration applied by Claim and Extend.
func WithVisibility(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.visibility = d
		}
	}
}

// WithDefaultDelay sets the default delay before an added message becomes claimable.
func WithDefaultDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithDeadLetterQueue routes messages claimed more than the retry maximum to dq.
func WithDeadLetterQueue(dq *Queue) Option {
	return func(o *options) {
		o.deadLetter = dq
	}
}

// WithMaxRetries sets how many claims a message may receive before it is
// dead-lettered. Only meaningful together with WithDeadLetterQueue.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithTokenGenerator replaces the lease token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.tokens = g
		}
	}
}

// WithLogger sets the logger for the queue
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// AddOption is a functional option for Add and AddBatch
type AddOption func(*addOptions)

type addOptions struct {
	delay *time.Duration
}

// WithDelay overrides the queue's default delay for this call.
// A zero delay makes the message claimable immediately.
func WithDelay(d time.Duration) AddOption {
	return func(o *addOptions) {
		if d >= 0 {
			o.delay = &d
		}
	}
}

// ClaimOption is a functional option for Claim
type ClaimOption func(*claimOptions)

type claimOptions struct {
	visibility time.Duration
}

// WithLeaseDuration overrides the queue's visibility window for this claim.
func WithLeaseDuration(d time.Duration) ClaimOption {
	return func(o *claimOptions) {
		if d > 0 {
			o.visibility = d
		}
	}
}

// ExtendOption is a functional option for Extend
type ExtendOption func(*extendOptions)

type extendOptions struct {
	visibility time.Duration
	resetTries bool
	release    bool
}

// WithExtendDuration overrides the queue's visibility window for this extension.
func WithExtendDuration(d time.Duration) ExtendOption {
	return func(o *extendOptions) {
		if d > 0 {
			o.visibility = d
		}
	}
}

// WithResetTries zeroes the message's try counter.
func WithResetTries() ExtendOption {
	return func(o *extendOptions) {
		o.resetTries = true
	}
}

// WithReleaseLease clears the lease token and makes the message claimable
// immediately instead of waiting out the lease.
func WithReleaseLease() ExtendOption {
	return func(o *extendOptions) {
		o.release = true
	}
}

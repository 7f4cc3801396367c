package queue

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	pullInterval       time.Duration
	leaseDuration      time.Duration
	heartbeatInterval  time.Duration
	handlerTimeout     time.Duration
	maxConcurrentTasks int
	retryBackoff       func(tries int) time.Duration
	logger             *slog.Logger
}

// WithPullInterval sets how often the worker checks for new messages
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithWorkerLeaseDuration sets the lease requested on each claim.
// Defaults to the queue's visibility window.
func WithWorkerLeaseDuration(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.leaseDuration = d
		}
	}
}

// WithHeartbeatInterval sets how often a running handler's lease is extended.
// Defaults to half the lease duration.
func WithHeartbeatInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.heartbeatInterval = d
		}
	}
}

// WithHandlerTimeout bounds a single handler run. Zero means no bound beyond
// losing the lease.
func WithHandlerTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.handlerTimeout = d
		}
	}
}

// WithMaxConcurrentTasks sets the maximum number of messages processed at once
func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentTasks = n
		}
	}
}

// WithRetryBackoff makes a failed message wait backoff(tries) before it is
// claimable again. Without it a failed message is released immediately.
func WithRetryBackoff(backoff func(tries int) time.Duration) WorkerOption {
	return func(o *workerOptions) {
		o.retryBackoff = backoff
	}
}

// LinearBackoff waits step times the try count.
func LinearBackoff(step time.Duration) func(tries int) time.Duration {
	return func(tries int) time.Duration {
		return time.Duration(tries) * step
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

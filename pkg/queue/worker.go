package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/docqueue/pkg/logger"
)

// Worker claims messages from a Queue and dispatches them to a Handler.
//
// While the handler runs the lease is extended on a heartbeat. A handler that
// returns nil finalizes the message; an error releases it for another attempt
// (after the retry backoff, if one is set). If the lease is lost the handler's
// context is cancelled and the message is left to whoever claimed it next.
type Worker struct {
	queue    *Queue
	handler  Handler
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopMu   sync.Mutex // Protects stopping state and WaitGroup operations

	// Configuration
	pullInterval      time.Duration
	leaseDuration     time.Duration
	heartbeatInterval time.Duration
	handlerTimeout    time.Duration
	retryBackoff      func(tries int) time.Duration
	logger            *slog.Logger

	// State management
	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new worker for q
func NewWorker(q *Queue, handler Handler, opts ...WorkerOption) (*Worker, error) {
	if q == nil {
		return nil, ErrQueueNil
	}
	if handler == nil {
		return nil, ErrNoHandler
	}

	// Default options
	options := &workerOptions{
		pullInterval:       time.Second,
		leaseDuration:      q.Visibility(),
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(options)
	}

	if options.heartbeatInterval <= 0 || options.heartbeatInterval >= options.leaseDuration {
		options.heartbeatInterval = options.leaseDuration / 2
	}
	if options.heartbeatInterval <= 0 {
		options.heartbeatInterval = time.Millisecond
	}

	workerID := uuid.New()
	return &Worker{
		queue:             q,
		handler:           handler,
		workerID:          workerID,
		sem:               make(chan struct{}, options.maxConcurrentTasks),
		pullInterval:      options.pullInterval,
		leaseDuration:     options.leaseDuration,
		heartbeatInterval: options.heartbeatInterval,
		handlerTimeout:    options.handlerTimeout,
		retryBackoff:      options.retryBackoff,
		logger: options.logger.With(
			logger.WorkerID(workerID.String()),
			logger.Queue(q.Name())),
	}, nil
}

// Start begins processing messages in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	// Reset stopping flag
	w.stopping.Store(false)

	// Start the main processing loop
	go w.run()

	w.logger.Info("worker started",
		slog.Int("max_concurrent", cap(w.sem)),
		slog.Duration("lease_duration", w.leaseDuration))

	return nil
}

// Stop gracefully shuts down the worker, waiting for running handlers.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	// Use stopMu to synchronize with run() goroutine
	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	// Cancel context to stop claiming
	cancel()

	w.logger.Info("worker stopping, waiting for active messages to complete")

	w.wg.Wait()

	w.logger.Info("worker stopped")

	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// run is the main processing loop
func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			// Try to acquire a slot
			select {
			case w.sem <- struct{}{}:
				// Use stopMu to ensure we don't add to WaitGroup after Stop() starts
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem // Release slot
					return
				}

				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }() // Release slot

					w.drain()
				}()
			default:
				w.logger.Debug("all worker slots busy, skipping tick")
			}
		}
	}
}

// drain processes messages until the queue is empty or the worker stops.
func (w *Worker) drain() {
	for !w.stopping.Load() {
		processed, err := w.pullAndProcess()
		if err != nil {
			w.logger.Error("failed to process message", logger.Error(err))
			return
		}
		if !processed {
			return
		}
	}
}

// pullAndProcess claims one message and processes it. It reports whether a
// message was claimed.
func (w *Worker) pullAndProcess() (bool, error) {
	d, err := w.queue.Claim(w.ctx, WithLeaseDuration(w.leaseDuration))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim message: %w", err)
	}
	if d == nil {
		return false, nil
	}

	w.logger.Debug("claimed message",
		logger.MessageID(d.ID),
		logger.Tries(d.Tries))

	return true, w.process(d)
}

// process executes the handler for d while keeping its lease alive.
func (w *Worker) process(d *Delivery) error {
	start := time.Now()

	// Handlers outlive the worker context so that Stop lets them finish.
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if w.handlerTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, w.handlerTimeout)
	}
	ctx, cancelLease := context.WithCancelCause(ctx)
	defer cancel()
	defer cancelLease(nil)

	hbDone := make(chan struct{})
	hbStop := make(chan struct{})
	go func() {
		defer close(hbDone)
		w.heartbeat(d, hbStop, cancelLease)
	}()
	var stopOnce sync.Once
	stopHeartbeat := func() {
		stopOnce.Do(func() {
			close(hbStop)
			<-hbDone
		})
	}

	defer func() {
		if r := recover(); r != nil {
			stopHeartbeat()
			w.logger.Error("handler panicked",
				logger.MessageID(d.ID),
				slog.Any("panic", r))
			// Treat panic as a failed attempt
			w.handleFailure(d, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	err := w.handler.Handle(ctx, d)
	stopHeartbeat()
	duration := time.Since(start)

	if cause := context.Cause(ctx); errors.Is(cause, ErrUnknownLease) {
		w.logger.Warn("lease lost while handling message",
			logger.MessageID(d.ID),
			logger.Duration(duration))
		return nil
	}

	if err != nil {
		w.handleFailure(d, err, duration)
		return nil
	}

	return w.handleSuccess(d, duration)
}

// heartbeat extends the lease of d until stop is closed. When the lease turns
// out to be gone it cancels the handler context with ErrUnknownLease.
func (w *Worker) heartbeat(d *Delivery, stop <-chan struct{}, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, err := w.queue.Extend(context.Background(), d.LeaseToken, WithExtendDuration(w.leaseDuration))
			switch {
			case err == nil:
			case errors.Is(err, ErrUnknownLease):
				cancel(ErrUnknownLease)
				return
			default:
				w.logger.Error("failed to extend lease",
					logger.MessageID(d.ID),
					logger.Error(err))
			}
		}
	}
}

// handleFailure releases the lease so the message is retried. The try count is
// kept, so a dead-letter queue on the Queue still catches poison messages.
func (w *Worker) handleFailure(d *Delivery, execErr error, duration time.Duration) {
	w.logger.Error("message handler failed",
		logger.MessageID(d.ID),
		logger.Tries(d.Tries),
		logger.Duration(duration),
		logger.Error(execErr))

	var err error
	if backoff := w.backoff(d.Tries); backoff > 0 {
		_, err = w.queue.Extend(context.Background(), d.LeaseToken, WithExtendDuration(backoff))
	} else {
		_, err = w.queue.Extend(context.Background(), d.LeaseToken, WithReleaseLease())
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownLease):
		w.logger.Warn("lease lost before release", logger.MessageID(d.ID))
	default:
		w.logger.Error("failed to release message",
			logger.MessageID(d.ID),
			logger.Error(err))
	}
}

func (w *Worker) backoff(tries int) time.Duration {
	if w.retryBackoff == nil {
		return 0
	}
	return w.retryBackoff(tries)
}

// handleSuccess finalizes the message
func (w *Worker) handleSuccess(d *Delivery, duration time.Duration) error {
	if _, err := w.queue.Finalize(context.Background(), d.LeaseToken); err != nil {
		if errors.Is(err, ErrUnknownLease) {
			w.logger.Warn("lease lost before finalize, message may be delivered again",
				logger.MessageID(d.ID),
				logger.Duration(duration))
			return nil
		}
		return fmt.Errorf("failed to finalize message %s: %w", d.ID, err)
	}

	w.logger.Info("message processed successfully",
		logger.MessageID(d.ID),
		logger.Tries(d.Tries),
		logger.Duration(duration))

	return nil
}

// WorkerInfo returns information about the worker
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}

// Package queue provides a lease-based work queue on top of a shared document
// store.
//
// Producers add messages; any number of workers, in any number of processes,
// compete to claim them. A claim is a lease: the message stays invisible to
// other workers until its deadline passes, and the lease token returned by the
// claim is required to extend or finalize it. A worker that dies simply lets
// its lease expire and the message becomes claimable again. No sweeper runs;
// expiry is part of the claim predicate.
//
// The package is organised around three main components:
//
//   - Queue: add, claim, extend, finalize, clean and counts
//   - MessageStore: the persistence contract with one atomic claim primitive
//   - Worker: polls a Queue and dispatches deliveries to a Handler
//
// # Message lifecycle
//
// A Message carries VisibleAt, LeaseToken, Tries and DoneAt. Its state is
// derived, never stored:
//
//	pending  DoneAt unset and VisibleAt <= now
//	leased   DoneAt unset, LeaseToken set and VisibleAt > now
//	done     DoneAt set
//
// Claim moves pending to leased, increments Tries and issues a fresh token.
// Extend pushes the deadline forward (optionally resetting Tries or releasing
// the lease). Finalize moves leased to done. Extend and Finalize fail with
// ErrUnknownLease once the lease has expired, been reclaimed, or finalized:
// that is the normal signal that a slow worker lost its message.
//
// Claim order is oldest VisibleAt first, ties broken by insertion order.
//
// # Dead-letter queues
//
// A Queue may hold a reference to another Queue as its dead-letter queue. A
// claimed message whose Tries exceeds the retry maximum is wrapped in a
// DeadLetter, added to that queue, finalized here, and Claim tries again. The
// move spans two round trips and is at-least-once: a crash in between can
// leave a duplicate on the dead-letter queue.
//
// # Usage
//
//	store := queue.NewMemoryStorage()
//
//	dead, _ := queue.New(store2, "emails-dead")
//	q, err := queue.New(store, "emails",
//	    queue.WithVisibility(time.Minute),
//	    queue.WithDeadLetterQueue(dead),
//	    queue.WithMaxRetries(3),
//	)
//	if err != nil {
//	    return err
//	}
//
//	id, err := q.Add(ctx, SendEmail{UserID: 42}, queue.WithDelay(10*time.Second))
//
//	d, err := q.Claim(ctx)
//	if d != nil {
//	    // ... process d.Payload ...
//	    _, err = q.Finalize(ctx, d.LeaseToken)
//	}
//
// Running a worker:
//
//	w, _ := queue.NewWorker(q, queue.NewHandler(func(ctx context.Context, p SendEmail) error {
//	    return send(ctx, p)
//	}), queue.WithMaxConcurrentTasks(4))
//	g.Go(w.Run(ctx))
//
// # Stores
//
// MemoryStorage lives in this package. Persistent stores live in the
// mongostore, pgstore and redisstore sub-packages; queuetest holds a shared
// behaviour suite every store must pass.
//
// # Error Handling
//
// ErrInvalidConfiguration, ErrInvalidArgument and ErrUnknownLease classify
// every error the queue creates; check them with errors.Is. Store errors are
// returned wrapped but otherwise untouched, and the queue never retries them.
package queue

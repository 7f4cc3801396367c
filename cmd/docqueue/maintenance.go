package main

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/docqueue/pkg/logger"
	"github.com/dmitrymomot/docqueue/pkg/queue"
)

// maintain logs the counts of every queue each interval and, with clean set,
// deletes done messages afterwards. It returns when ctx is cancelled.
func maintain(ctx context.Context, queues map[string]*queue.Queue, interval time.Duration, clean bool, log *slog.Logger) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	names := make([]string, 0, len(queues))
	for name := range queues {
		names = append(names, name)
	}
	slices.Sort(names)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, name := range names {
				maintainQueue(ctx, queues[name], clean, log)
			}
		}
	}
}

func maintainQueue(ctx context.Context, q *queue.Queue, clean bool, log *slog.Logger) {
	stats, err := q.Stats(ctx)
	if err != nil {
		log.ErrorContext(ctx, "failed to collect queue stats", logger.Queue(q.Name()), logger.Error(err))
		return
	}
	log.InfoContext(ctx, "queue stats",
		logger.Queue(q.Name()),
		slog.Int64("total", stats.Total),
		slog.Int64("size", stats.Size),
		slog.Int64("in_flight", stats.InFlight),
		slog.Int64("done", stats.Done))

	if clean && stats.Done > 0 {
		if err := q.Clean(ctx); err != nil {
			log.ErrorContext(ctx, "failed to clean queue", logger.Queue(q.Name()), logger.Error(err))
			return
		}
		log.InfoContext(ctx, "done messages removed", logger.Queue(q.Name()), slog.Int64("count", stats.Done))
	}
}

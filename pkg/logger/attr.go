package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// RequestID records the request identifier under the key "request_id".
// If id is empty, it returns an empty Attr.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Queue records the queue name under the key "queue".
func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

// DeadLetterQueue records the dead-letter queue name under the key "dead_letter_queue".
func DeadLetterQueue(name string) slog.Attr {
	return slog.String("dead_letter_queue", name)
}

// MessageID records the message identifier under the key "message_id".
// If id is empty, it returns an empty Attr.
func MessageID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("message_id", id)
}

// Tries records how many times a message has been claimed under the key "tries".
func Tries(n int) slog.Attr {
	return slog.Int("tries", n)
}

// WorkerID records the worker identifier under the key "worker_id".
func WorkerID(id string) slog.Attr {
	return slog.String("worker_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

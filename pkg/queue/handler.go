package queue

import (
	"context"
	"fmt"
)

type (
	// Handler processes one claimed message. Returning nil finalizes it.
	Handler interface {
		Handle(ctx context.Context, d *Delivery) error
	}

	// HandlerFunc adapts a function to the Handler interface.
	HandlerFunc func(ctx context.Context, d *Delivery) error

	// TypedHandlerFunc receives the payload decoded into T.
	TypedHandlerFunc[T any] func(ctx context.Context, payload T) error
)

func (f HandlerFunc) Handle(ctx context.Context, d *Delivery) error {
	return f(ctx, d)
}

// NewHandler decodes the JSON payload into T before calling handler.
// A payload that does not decode fails the delivery.
func NewHandler[T any](handler TypedHandlerFunc[T]) Handler {
	return &typedHandler[T]{handler: handler}
}

type typedHandler[T any] struct {
	handler TypedHandlerFunc[T]
}

func (h *typedHandler[T]) Handle(ctx context.Context, d *Delivery) error {
	var t T
	if err := d.Decode(&t); err != nil {
		return fmt.Errorf("failed to decode payload into %s: %w", qualifiedTypeName(t), err)
	}
	return h.handler(ctx, t)
}

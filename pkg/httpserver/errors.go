package httpserver

import "errors"

var (
	// ErrStart is returned by Run when the listener cannot be opened or the
	// server stops with an error.
	ErrStart = errors.New("failed to start HTTP server")
	// ErrShutdown is returned by Shutdown when draining connections fails.
	ErrShutdown = errors.New("failed to shutdown HTTP server gracefully")
	// ErrAlreadyRunning is joined with ErrStart when Run is called twice.
	ErrAlreadyRunning = errors.New("server already running")
)

package requestid

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const (
	// Header is the default request id header, read from requests and echoed on responses.
	Header      = "X-Request-ID"
	maxIDLength = 128
)

var validID = regexp.MustCompile("^[a-zA-Z0-9_-]+$")

// Option configures the middleware built by New.
type Option func(*middleware)

type middleware struct {
	header   string
	generate func() string
}

// WithHeader reads and writes the request id under a different header.
func WithHeader(name string) Option {
	return func(m *middleware) {
		if name != "" {
			m.header = name
		}
	}
}

// WithGenerator replaces the UUIDv4 generator used when the client sends no
// usable id.
func WithGenerator(fn func() string) Option {
	return func(m *middleware) {
		if fn != nil {
			m.generate = fn
		}
	}
}

// New returns middleware that attaches a request id to the request context
// and the response. A client-supplied id is reused when it is short and made
// of letters, digits, '-' and '_'.
func New(opts ...Option) func(http.Handler) http.Handler {
	m := &middleware{header: Header, generate: uuid.NewString}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(m.header)
			if !isValid(id) {
				id = m.generate()
			}
			w.Header().Set(m.header, id)
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
		})
	}
}

// Middleware is New with default options.
func Middleware(next http.Handler) http.Handler {
	return New()(next)
}

func isValid(id string) bool {
	return id != "" && len(id) <= maxIDLength && validID.MatchString(id)
}

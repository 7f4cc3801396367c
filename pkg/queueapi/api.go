package queueapi

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/docqueue/pkg/httpserver"
	"github.com/dmitrymomot/docqueue/pkg/logger"
	"github.com/dmitrymomot/docqueue/pkg/queue"
	"github.com/dmitrymomot/docqueue/pkg/requestid"
)

// DefaultMaxBodyBytes bounds request bodies unless WithMaxBodyBytes says otherwise.
const DefaultMaxBodyBytes = 1 << 20

// API exposes a fixed set of named queues over HTTP.
type API struct {
	queues       map[string]*queue.Queue
	names        []string
	log          *slog.Logger
	checks       []httpserver.CheckFunc
	readyTimeout time.Duration
	maxBodyBytes int64
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger for request and error records.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

// WithReadinessChecks adds checks run by GET /health/ready.
func WithReadinessChecks(checks ...httpserver.CheckFunc) Option {
	return func(a *API) {
		a.checks = append(a.checks, checks...)
	}
}

// WithReadinessTimeout bounds the readiness checks.
func WithReadinessTimeout(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.readyTimeout = d
		}
	}
}

// WithMaxBodyBytes limits request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// New returns an API serving queues by name.
func New(queues map[string]*queue.Queue, opts ...Option) (*API, error) {
	if len(queues) == 0 {
		return nil, ErrNoQueues
	}

	a := &API{
		queues:       make(map[string]*queue.Queue, len(queues)),
		log:          slog.Default(),
		readyTimeout: 5 * time.Second,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for name, q := range queues {
		if q == nil {
			return nil, ErrQueueNil
		}
		a.queues[name] = q
		a.names = append(a.names, name)
	}
	slices.Sort(a.names)

	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(logger.Component("queueapi"))

	return a, nil
}

// Router builds the HTTP handler:
//
//	GET    /health/live
//	GET    /health/ready
//	GET    /queues
//	POST   /queues/{queue}/messages
//	POST   /queues/{queue}/claim
//	POST   /queues/{queue}/leases/{token}/extend
//	DELETE /queues/{queue}/leases/{token}
//	POST   /queues/{queue}/clean
//	GET    /queues/{queue}/stats
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware, a.logRequests, middleware.Recoverer, a.limitBody)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, ErrMethodNotAllowed)
	})

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(a.log, a.readyTimeout, a.checks...))

	r.Route("/queues", func(r chi.Router) {
		r.Get("/", a.listQueues)
		r.Route("/{queue}", func(r chi.Router) {
			r.Post("/messages", a.addMessages)
			r.Post("/claim", a.claim)
			r.Post("/leases/{token}/extend", a.extend)
			r.Delete("/leases/{token}", a.finalize)
			r.Post("/clean", a.clean)
			r.Get("/stats", a.stats)
		})
	})

	return r
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.log.DebugContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			logger.Duration(time.Since(start)))
	})
}

func (a *API) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// queue resolves the {queue} path parameter, writing 404 when it is unknown.
func (a *API) queue(w http.ResponseWriter, r *http.Request) (*queue.Queue, bool) {
	name := chi.URLParam(r, "queue")
	q, ok := a.queues[name]
	if !ok {
		a.writeError(w, r, ErrQueueNotFound)
		return nil, false
	}
	return q, true
}

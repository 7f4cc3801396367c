package queueapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/docqueue/pkg/httpserver"
	"github.com/dmitrymomot/docqueue/pkg/queue"
	"github.com/dmitrymomot/docqueue/pkg/queue/queuetest"
	"github.com/dmitrymomot/docqueue/pkg/queueapi"
	"github.com/dmitrymomot/docqueue/pkg/requestid"
)

type envelope struct {
	Data  json.RawMessage       `json:"data"`
	Error *queueapi.ErrorDetail `json:"error"`
}

type fixture struct {
	clock   *queuetest.Clock
	emails  *queue.Queue
	dead    *queue.Queue
	handler http.Handler
}

func newFixture(t *testing.T, opts ...queueapi.Option) *fixture {
	t.Helper()

	clock := queuetest.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	log := slog.New(slog.DiscardHandler)

	dead, err := queue.New(queue.NewMemoryStorage(), "emails-dead",
		queue.WithClock(clock), queue.WithLogger(log))
	require.NoError(t, err)
	emails, err := queue.New(queue.NewMemoryStorage(), "emails",
		queue.WithClock(clock),
		queue.WithLogger(log),
		queue.WithVisibility(30*time.Second),
		queue.WithDeadLetterQueue(dead),
		queue.WithMaxRetries(2))
	require.NoError(t, err)

	api, err := queueapi.New(map[string]*queue.Queue{
		"emails":      emails,
		"emails-dead": dead,
	}, append([]queueapi.Option{queueapi.WithLogger(log)}, opts...)...)
	require.NoError(t, err)

	return &fixture{clock: clock, emails: emails, dead: dead, handler: api.Router()}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := queueapi.New(nil)
	assert.ErrorIs(t, err, queueapi.ErrNoQueues)

	_, err = queueapi.New(map[string]*queue.Queue{"a": nil})
	assert.ErrorIs(t, err, queueapi.ErrQueueNil)
}

func TestAPI_RoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/queues/emails/messages", `{"payload":{"to":"a@example.com"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added struct{ ID string }
	require.NoError(t, json.Unmarshal(env.Data, &added))
	assert.NotEmpty(t, added.ID)

	rec, env = f.do(t, http.MethodPost, "/queues/emails/claim", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var d queue.Delivery
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, added.ID, d.ID)
	assert.Equal(t, 1, d.Tries)
	assert.NotEmpty(t, d.LeaseToken)
	assert.JSONEq(t, `{"to":"a@example.com"}`, string(d.Payload))

	rec, _ = f.do(t, http.MethodPost, "/queues/emails/claim", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "leased message is invisible")

	rec, env = f.do(t, http.MethodPost, "/queues/emails/leases/"+d.LeaseToken+"/extend", `{"visibility":60}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"`+added.ID+`"}`, string(env.Data))

	rec, env = f.do(t, http.MethodDelete, "/queues/emails/leases/"+d.LeaseToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"`+added.ID+`"}`, string(env.Data))

	rec, env = f.do(t, http.MethodDelete, "/queues/emails/leases/"+d.LeaseToken, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unknown_lease", env.Error.Code)

	rec, env = f.do(t, http.MethodGet, "/queues/emails/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":1,"size":0,"in_flight":0,"done":1}`, string(env.Data))

	rec, _ = f.do(t, http.MethodPost, "/queues/emails/clean", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	total, err := f.emails.Total(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAPI_AddMessages(t *testing.T) {
	t.Parallel()

	t.Run("batch keeps order", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec, env := f.do(t, http.MethodPost, "/queues/emails/messages", `{"payloads":["a","b","c"]}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var added struct{ IDs []string }
		require.NoError(t, json.Unmarshal(env.Data, &added))
		require.Len(t, added.IDs, 3)

		for _, want := range []string{`"a"`, `"b"`, `"c"`} {
			d, err := f.emails.Claim(context.Background())
			require.NoError(t, err)
			require.NotNil(t, d)
			assert.JSONEq(t, want, string(d.Payload))
		}
	})

	t.Run("delay in seconds", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec, _ := f.do(t, http.MethodPost, "/queues/emails/messages", `{"payload":"later","delay":10}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec, _ = f.do(t, http.MethodPost, "/queues/emails/claim", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		f.clock.Advance(10 * time.Second)
		rec, _ = f.do(t, http.MethodPost, "/queues/emails/claim", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"empty batch", `{"payloads":[]}`, http.StatusBadRequest, "invalid_argument"},
		{"no payload", `{}`, http.StatusBadRequest, "invalid_argument"},
		{"null payload", `{"payload":null}`, http.StatusBadRequest, "invalid_argument"},
		{"null in batch", `{"payloads":[1,null]}`, http.StatusBadRequest, "invalid_argument"},
		{"both forms", `{"payload":1,"payloads":[2]}`, http.StatusBadRequest, "invalid_argument"},
		{"negative delay", `{"payload":1,"delay":-1}`, http.StatusBadRequest, "invalid_argument"},
		{"delay too large", `{"payload":1,"delay":1e12}`, http.StatusBadRequest, "invalid_argument"},
		{"unknown field", `{"payload":1,"priority":9}`, http.StatusBadRequest, "invalid_json"},
		{"broken json", `{"payload":`, http.StatusBadRequest, "invalid_json"},
		{"trailing data", `{"payload":1} {}`, http.StatusBadRequest, "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			rec, env := f.do(t, http.MethodPost, "/queues/emails/messages", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)

			total, err := f.emails.Total(context.Background())
			require.NoError(t, err)
			assert.Zero(t, total)
		})
	}

	t.Run("body required", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec, env := f.do(t, http.MethodPost, "/queues/emails/messages", "")
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		require.NotNil(t, env.Error)
	})

	t.Run("wrong content type", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		req := httptest.NewRequest(http.MethodPost, "/queues/emails/messages", strings.NewReader(`{"payload":1}`))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, queueapi.WithMaxBodyBytes(16))

		rec, env := f.do(t, http.MethodPost, "/queues/emails/messages", `{"payload":"`+strings.Repeat("x", 64)+`"}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "body_too_large", env.Error.Code)
	})
}

func TestAPI_ClaimAndExtend(t *testing.T) {
	t.Parallel()

	t.Run("custom visibility", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.emails.Add(context.Background(), "x")
		require.NoError(t, err)

		rec, _ := f.do(t, http.MethodPost, "/queues/emails/claim", `{"visibility":5}`)
		require.Equal(t, http.StatusOK, rec.Code)

		f.clock.Advance(5 * time.Second)
		rec, env := f.do(t, http.MethodPost, "/queues/emails/claim", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var d queue.Delivery
		require.NoError(t, json.Unmarshal(env.Data, &d))
		assert.Equal(t, 2, d.Tries)
	})

	t.Run("visibility too large", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.emails.Add(context.Background(), "x")
		require.NoError(t, err)

		rec, env := f.do(t, http.MethodPost, "/queues/emails/claim", `{"visibility":1e12}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "invalid_argument", env.Error.Code)

		size, err := f.emails.Size(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), size)

		d, err := f.emails.Claim(context.Background())
		require.NoError(t, err)
		rec, env = f.do(t, http.MethodPost, "/queues/emails/leases/"+d.LeaseToken+"/extend", `{"visibility":1e12}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "invalid_argument", env.Error.Code)
	})

	t.Run("release makes the message claimable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.emails.Add(context.Background(), "x")
		require.NoError(t, err)
		d, err := f.emails.Claim(context.Background())
		require.NoError(t, err)

		rec, _ := f.do(t, http.MethodPost, "/queues/emails/leases/"+d.LeaseToken+"/extend", `{"release":true,"reset_tries":true}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		again, err := f.emails.Claim(context.Background())
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, 1, again.Tries)
	})

	t.Run("extend unknown lease", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec, env := f.do(t, http.MethodPost, "/queues/emails/leases/nope/extend", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "unknown_lease", env.Error.Code)
	})

	t.Run("expired lease cannot be extended", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.emails.Add(context.Background(), "x")
		require.NoError(t, err)
		d, err := f.emails.Claim(context.Background())
		require.NoError(t, err)

		f.clock.Advance(30 * time.Second)
		rec, _ := f.do(t, http.MethodPost, "/queues/emails/leases/"+d.LeaseToken+"/extend", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("dead letters over http", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.emails.Add(context.Background(), "poison")
		require.NoError(t, err)

		for range 2 {
			rec, _ := f.do(t, http.MethodPost, "/queues/emails/claim", "")
			require.Equal(t, http.StatusOK, rec.Code)
			f.clock.Advance(30 * time.Second)
		}
		rec, _ := f.do(t, http.MethodPost, "/queues/emails/claim", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec, env := f.do(t, http.MethodPost, "/queues/emails-dead/claim", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var d queue.Delivery
		require.NoError(t, json.Unmarshal(env.Data, &d))
		var dl queue.DeadLetter
		require.NoError(t, d.Decode(&dl))
		assert.Equal(t, 3, dl.Tries)
		assert.JSONEq(t, `"poison"`, string(dl.Payload))
	})
}

func TestAPI_Routing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/queues/missing/stats", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "queue_not_found", env.Error.Code)
	assert.NotEmpty(t, env.Error.RequestID)
	assert.Equal(t, env.Error.RequestID, rec.Header().Get(requestid.Header))

	rec, env = f.do(t, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)

	rec, _ = f.do(t, http.MethodGet, "/queues/emails/claim", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/queues", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"name":"emails","visibility":30,"dead_letter_queue":"emails-dead","max_retries":2},
		{"name":"emails-dead","visibility":30,"max_retries":-1}
	]`, string(env.Data))
}

func TestAPI_Health(t *testing.T) {
	t.Parallel()

	healthy := newFixture(t, queueapi.WithReadinessChecks(func(context.Context) error { return nil }))
	rec, _ := healthy.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = healthy.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())

	failing := newFixture(t,
		queueapi.WithReadinessTimeout(time.Second),
		queueapi.WithReadinessChecks(httpserver.CheckFunc(func(context.Context) error { return errors.New("store down") })))
	rec, _ = failing.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPI_StoreFailure(t *testing.T) {
	t.Parallel()

	q, err := queue.New(failingStore{queue.NewMemoryStorage()}, "broken", queue.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	api, err := queueapi.New(map[string]*queue.Queue{"broken": q}, queueapi.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues/broken/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "internal_error", env.Error.Code)
	assert.NotContains(t, env.Error.Message, "disk on fire")
}

type failingStore struct {
	*queue.MemoryStorage
}

func (failingStore) Count(context.Context, queue.Filter, time.Time) (int64, error) {
	return 0, errors.New("disk on fire")
}

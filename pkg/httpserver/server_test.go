package httpserver_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/dmitrymomot/docqueue/pkg/httpserver"
	"github.com/dmitrymomot/docqueue/pkg/queue"
	"github.com/dmitrymomot/docqueue/pkg/queueapi"
)

// start runs srv in the background and waits until it listens.
func start(t *testing.T, ctx context.Context, srv *httpserver.Server, h http.Handler) (string, <-chan error) {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, h) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		require.FailNow(t, "run returned before listening", "%v", err)
	case <-time.After(time.Second):
		require.FailNow(t, "server did not start listening")
	}
	return "http://" + srv.Addr().String(), done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		require.FailNow(t, "run did not return")
		return nil
	}
}

func TestServer_ServesQueueAPI(t *testing.T) {
	t.Parallel()

	q, err := queue.New(queue.NewMemoryStorage(), "emails", queue.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	api, err := queueapi.New(map[string]*queue.Queue{"emails": q})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httpserver.NewFromConfig(httpserver.Config{Addr: "127.0.0.1:0"})
	base, done := start(t, ctx, srv, api.Router())

	resp, err := http.Post(base+"/queues/emails/messages", "application/json", strings.NewReader(`{"payload":{"to":"a@b.c"}}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Post(base+"/queues/emails/claim", "application/json", nil)
	require.NoError(t, err)
	var body struct {
		Data queue.Delivery `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"to":"a@b.c"}`, string(body.Data.Payload))
	assert.Equal(t, 1, body.Data.Tries)

	cancel()
	require.NoError(t, waitRun(t, done))
}

func TestServer_DrainsInFlightRequests(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		_, _ = io.WriteString(w, "finished")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httpserver.New(httpserver.WithAddr("127.0.0.1:0"), httpserver.WithShutdownTimeout(time.Second))
	base, done := start(t, ctx, srv, handler)

	type result struct {
		body string
		err  error
	}
	got := make(chan result, 1)
	go func() {
		resp, err := http.Get(base)
		if err != nil {
			got <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		got <- result{body: string(b), err: err}
	}()

	<-entered
	cancel()
	close(release)

	r := <-got
	require.NoError(t, r.err)
	assert.Equal(t, "finished", r.body)
	require.NoError(t, waitRun(t, done))
}

func TestServer_Shutdown(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr("127.0.0.1:0"))
	assert.Nil(t, srv.Addr())
	require.NoError(t, srv.Shutdown(context.Background()), "shutdown before run is a no-op")

	_, done := start(t, context.Background(), srv, http.NotFoundHandler())

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()), "repeated shutdown")
	require.NoError(t, waitRun(t, done))
}

func TestServer_StartErrors(t *testing.T) {
	t.Parallel()

	t.Run("address in use", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()

		srv := httpserver.New(httpserver.WithAddr(ln.Addr().String()))
		err = srv.Run(context.Background(), nil)
		assert.ErrorIs(t, err, httpserver.ErrStart)
		assert.Nil(t, srv.Addr())
	})

	t.Run("already running", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		srv := httpserver.New(httpserver.WithAddr("127.0.0.1:0"))
		_, done := start(t, ctx, srv, nil)

		err := srv.Run(ctx, nil)
		assert.ErrorIs(t, err, httpserver.ErrStart)
		assert.ErrorIs(t, err, httpserver.ErrAlreadyRunning)

		cancel()
		require.NoError(t, waitRun(t, done))
	})
}

func TestConfig_Options(t *testing.T) {
	t.Parallel()

	// zero values keep the defaults instead of disabling timeouts
	srv := httpserver.NewFromConfig(httpserver.Config{}, httpserver.WithAddr("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	base, done := start(t, ctx, srv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	resp, err := http.Get(base)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	cancel()
	require.NoError(t, waitRun(t, done))
}

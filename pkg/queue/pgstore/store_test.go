package pgstore_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/docqueue/pkg/pg"
	"github.com/dmitrymomot/docqueue/pkg/queue"
	"github.com/dmitrymomot/docqueue/pkg/queue/pgstore"
	"github.com/dmitrymomot/docqueue/pkg/queue/queuetest"
)

func TestStore(t *testing.T) {
	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL is not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString:  url,
		MaxOpenConns:      25,
		MaxIdleConns:      1,
		HealthCheckPeriod: time.Minute,
		MaxConnIdleTime:   time.Minute,
		MaxConnLifetime:   time.Hour,
		RetryAttempts:     1,
		MigrationsPath:    "migrations",
		MigrationsTable:   "schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, pgstore.Migrations, slog.New(slog.DiscardHandler)))

	queuetest.RunStoreSuite(t, func(t *testing.T) queue.MessageStore {
		name := "test-" + uuid.NewString()
		t.Cleanup(func() {
			_, _ = pool.Exec(context.Background(), "DELETE FROM queue_messages WHERE queue = $1", name)
		})

		store, err := pgstore.New(pool, name)
		require.NoError(t, err)
		return store
	})

	t.Run("queues sharing the table are isolated", func(t *testing.T) {
		nameA := "iso-a-" + uuid.NewString()
		t.Cleanup(func() {
			_, _ = pool.Exec(context.Background(), "DELETE FROM queue_messages WHERE queue = $1", nameA)
		})

		a, err := pgstore.New(pool, nameA)
		require.NoError(t, err)
		b, err := pgstore.New(pool, "iso-b-"+uuid.NewString())
		require.NoError(t, err)

		now := queuetest.Now()
		_, err = a.InsertMany(ctx, queuetest.NewMessages(now, `"only-a"`))
		require.NoError(t, err)

		_, err = b.ClaimNext(ctx, now, queue.Lease{Token: uuid.NewString(), Until: now.Add(time.Minute)})
		assert.ErrorIs(t, err, queue.ErrNoMatch)

		n, err := b.Count(ctx, queue.FilterAll, now)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = a.Count(ctx, queue.FilterClaimable, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

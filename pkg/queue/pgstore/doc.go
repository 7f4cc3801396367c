// Package pgstore stores queue messages in PostgreSQL.
//
// All queues share the queue_messages table created by the embedded goose
// migrations; rows are partitioned by queue name. Claims use
// UPDATE ... WHERE id = (SELECT ... FOR UPDATE SKIP LOCKED LIMIT 1), so
// concurrent workers never block on each other's rows.
//
// Usage:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, slog.Default()); err != nil {
//		return err
//	}
//	store, err := pgstore.New(pool, "emails")
//	if err != nil {
//		return err
//	}
//	q, err := queue.New(store, "emails")
package pgstore

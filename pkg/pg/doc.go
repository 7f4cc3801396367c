// Package pg connects to PostgreSQL with pgx/v5 and applies goose migrations
// for the pgstore queue backend.
//
// # Usage
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, slog.Default()); err != nil {
//		return err
//	}
//
//	health := pg.Healthcheck(pool)
//
// # Configuration
//
// Config fields are read from PG_* environment variables. MigrationsPath is
// resolved inside the filesystem passed to Migrate, or on local disk when that
// filesystem is nil.
//
// # Error Handling
//
// IsNotFoundError and IsDuplicateKeyError classify driver errors. Connect and
// Migrate join their sentinel errors with the underlying cause.
package pg

package pgstore

import "embed"

// Migrations holds the goose migrations creating the queue_messages table.
// Run them with pg.Migrate and a MigrationsPath of "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS

package pg

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

type discardLogger struct{}

func (discardLogger) InfoContext(context.Context, string, ...any)  {}
func (discardLogger) ErrorContext(context.Context, string, ...any) {}

func TestMigrate_Validation(t *testing.T) {
	t.Parallel()

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()

		err := Migrate(context.Background(), nil, Config{}, nil, discardLogger{})
		assert.ErrorIs(t, err, ErrFailedToApplyMigrations)
		assert.ErrorIs(t, err, ErrMigrationPathNotProvided)
	})

	t.Run("missing directory in filesystem", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{"other/00001_init.sql": {Data: []byte("-- +goose Up\n")}}
		err := Migrate(context.Background(), nil, Config{MigrationsPath: "migrations"}, fsys, discardLogger{})
		assert.ErrorIs(t, err, ErrMigrationsDirNotFound)
	})

	t.Run("missing directory on disk", func(t *testing.T) {
		t.Parallel()

		err := Migrate(context.Background(), nil, Config{MigrationsPath: "does/not/exist"}, nil, discardLogger{})
		assert.ErrorIs(t, err, ErrMigrationsDirNotFound)
	})
}

func TestSlogAdapter(t *testing.T) {
	t.Parallel()

	rec := &recordingLogger{}
	a := newSlogAdapter(rec)
	a.Printf("applied %d migrations", 2)
	a.Fatalf("failed: %s", "boom")

	assert.Equal(t, []string{"applied 2 migrations"}, rec.info)
	assert.Equal(t, []string{"failed: boom"}, rec.errs)
}

type recordingLogger struct {
	info []string
	errs []string
}

func (r *recordingLogger) InfoContext(_ context.Context, msg string, _ ...any) {
	r.info = append(r.info, msg)
}

func (r *recordingLogger) ErrorContext(_ context.Context, msg string, _ ...any) {
	r.errs = append(r.errs, msg)
}

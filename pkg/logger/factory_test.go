package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/docqueue/pkg/logger"
	"github.com/dmitrymomot/docqueue/pkg/requestid"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults to json at info", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))

		log.Debug("hidden")
		assert.Empty(t, buf.String())

		log.Info("message claimed", logger.Queue("emails"), logger.MessageID("m1"), logger.Tries(2))
		entry := decodeEntry(t, buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "emails", entry["queue"])
		assert.Equal(t, "m1", entry["message_id"])
		assert.Equal(t, float64(2), entry["tries"])
	})

	t.Run("unknown format is ignored", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithFormat("xml"))

		log.Info("still json")
		assert.Equal(t, "still json", decodeEntry(t, buf)["msg"])
	})

	t.Run("static attributes", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(logger.Component("maintenance")))

		log.Info("queue stats")
		assert.Equal(t, "maintenance", decodeEntry(t, buf)["component"])
	})
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env       string
		wantEnv   string
		wantDebug bool
		wantJSON  bool
	}{
		{"production", logger.EnvProduction, false, true},
		{"prod", logger.EnvProduction, false, true},
		{"Staging", logger.EnvStaging, false, true},
		{"stage", logger.EnvStaging, false, true},
		{"development", logger.EnvDevelopment, true, false},
		{"local", logger.EnvDevelopment, true, false},
		{"", logger.EnvDevelopment, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			log := logger.New(logger.WithOutput(buf), logger.WithEnvironment(tt.env, "docqueue"))

			assert.Equal(t, tt.wantDebug, log.Enabled(context.Background(), slog.LevelDebug))

			log.Info("ready")
			if tt.wantJSON {
				entry := decodeEntry(t, buf)
				assert.Equal(t, tt.wantEnv, entry["env"])
				assert.Equal(t, "docqueue", entry["service"])
				return
			}
			assert.Contains(t, buf.String(), "env="+tt.wantEnv)
			assert.Contains(t, buf.String(), "service=docqueue")
		})
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("level overrides preset", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		opts := logger.FromConfig(logger.Config{Service: "docqueue", Env: "production", Level: "warn"})
		log := logger.New(append(opts, logger.WithOutput(buf))...)

		log.Info("hidden")
		assert.Empty(t, buf.String())

		log.Warn("shown")
		entry := decodeEntry(t, buf)
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "docqueue", entry["service"])
	})

	t.Run("format overrides preset", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		opts := logger.FromConfig(logger.Config{Service: "docqueue", Env: "development", Format: "JSON"})
		log := logger.New(append(opts, logger.WithOutput(buf))...)

		log.Debug("debug in json")
		entry := decodeEntry(t, buf)
		assert.Equal(t, "DEBUG", entry["level"])
		assert.Equal(t, logger.EnvDevelopment, entry["env"])
	})

	t.Run("bad level is ignored", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		opts := logger.FromConfig(logger.Config{Env: "production", Level: "loud"})
		log := logger.New(append(opts, logger.WithOutput(buf))...)

		assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
		assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
	})
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	lvl, ok := logger.ParseLevel("DEBUG")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelDebug, lvl)

	_, ok = logger.ParseLevel(" ")
	assert.False(t, ok)

	_, ok = logger.ParseLevel("loud")
	assert.False(t, ok)
}

func TestContextExtractors(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextExtractors(nil, requestid.LoggerExtractor()),
	)

	// derived loggers keep the extractor
	derived := log.With(logger.Queue("emails")).WithGroup("claim")

	ctx := requestid.WithContext(context.Background(), "req-42")
	derived.InfoContext(ctx, "message claimed", logger.MessageID("m1"))
	entry := decodeEntry(t, buf)
	assert.Equal(t, "emails", entry["queue"])
	group, ok := entry["claim"].(map[string]any)
	require.True(t, ok, buf.String())
	assert.Equal(t, "m1", group["message_id"])
	assert.Equal(t, "req-42", group["request_id"])

	buf.Reset()
	log.InfoContext(context.Background(), "no request")
	_, has := decodeEntry(t, buf)["request_id"]
	assert.False(t, has)
}

package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Deployment environments understood by WithEnvironment and Config.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Format is the encoding of log records.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// preset is the level and format an environment starts from.
type preset struct {
	level  slog.Level
	format Format
}

var presets = map[string]preset{
	EnvDevelopment: {level: slog.LevelDebug, format: FormatText},
	EnvStaging:     {level: slog.LevelInfo, format: FormatJSON},
	EnvProduction:  {level: slog.LevelInfo, format: FormatJSON},
}

var envAliases = map[string]string{
	"dev":   EnvDevelopment,
	"local": EnvDevelopment,
	"stage": EnvStaging,
	"prod":  EnvProduction,
}

// Option configures New.
type Option func(*config)

type config struct {
	level      slog.Level
	format     Format
	output     io.Writer
	attrs      []slog.Attr
	extractors []ContextExtractor
}

// WithLevel sets the minimum level.
func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithFormat sets the record encoding. Unknown formats are ignored.
func WithFormat(f Format) Option {
	return func(c *config) {
		if f == FormatJSON || f == FormatText {
			c.format = f
		}
	}
}

// WithOutput redirects records to w.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) {
		c.attrs = append(c.attrs, attrs...)
	}
}

// WithContextExtractors registers callbacks that add attributes taken from
// the context of each record, such as requestid.LoggerExtractor.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) {
		for _, ex := range extractors {
			if ex != nil {
				c.extractors = append(c.extractors, ex)
			}
		}
	}
}

// WithEnvironment applies the level and format preset of env and tags every
// record with the service and environment names. Unknown environments fall
// back to development.
func WithEnvironment(env, service string) Option {
	return func(c *config) {
		env = normalizeEnv(env)
		p := presets[env]
		c.level, c.format = p.level, p.format
		if service != "" {
			c.attrs = append(c.attrs, slog.String("service", service))
		}
		c.attrs = append(c.attrs, slog.String("env", env))
	}
}

func normalizeEnv(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	if alias, ok := envAliases[env]; ok {
		return alias
	}
	if _, ok := presets[env]; ok {
		return env
	}
	return EnvDevelopment
}

// Config is the environment-driven logger configuration.
type Config struct {
	Service string `env:"APP_NAME" envDefault:"docqueue"`
	Env     string `env:"APP_ENV" envDefault:"development"`
	Level   string `env:"LOG_LEVEL"`
	Format  string `env:"LOG_FORMAT"`
}

// FromConfig turns cfg into options: the environment preset first, then an
// explicit level and format when set. Unparsable values are ignored.
func FromConfig(cfg Config) []Option {
	opts := []Option{WithEnvironment(cfg.Env, cfg.Service)}
	if lvl, ok := ParseLevel(cfg.Level); ok {
		opts = append(opts, WithLevel(lvl))
	}
	if cfg.Format != "" {
		opts = append(opts, WithFormat(Format(strings.ToLower(cfg.Format))))
	}
	return opts
}

// ParseLevel parses debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (slog.Level, bool) {
	if strings.TrimSpace(s) == "" {
		return 0, false
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, false
	}
	return l, true
}

// SetAsDefault installs l as the slog default, which Queue and Worker use
// when no logger option is given.
func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// New builds a logger. Without options it writes JSON at info level to stdout.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.level}
	var h slog.Handler
	if cfg.format == FormatText {
		h = slog.NewTextHandler(cfg.output, handlerOpts)
	} else {
		h = slog.NewJSONHandler(cfg.output, handlerOpts)
	}
	if len(cfg.attrs) > 0 {
		h = h.WithAttrs(cfg.attrs)
	}
	if len(cfg.extractors) > 0 {
		h = &contextHandler{next: h, extractors: cfg.extractors}
	}
	return slog.New(h)
}

package queue

import "time"

// Config holds the construction settings of one queue. It can be filled from
// environment variables or from a topology file.
type Config struct {
	Name            string        `env:"QUEUE_NAME" envDefault:"default" yaml:"name"`
	Visibility      time.Duration `env:"QUEUE_VISIBILITY" envDefault:"30s" yaml:"visibility"`
	Delay           time.Duration `env:"QUEUE_DELAY" envDefault:"0s" yaml:"delay"`
	DeadLetterQueue string        `env:"QUEUE_DEAD_LETTER" yaml:"dead_letter_queue"`
	MaxRetries      *int          `env:"QUEUE_MAX_RETRIES" yaml:"max_retries"`
}

// Options converts the config into queue options. The dead-letter queue is
// not included: it must be resolved to a *Queue by the caller.
func (c Config) Options() []Option {
	opts := []Option{
		WithVisibility(c.Visibility),
		WithDefaultDelay(c.Delay),
	}
	if c.MaxRetries != nil {
		opts = append(opts, WithMaxRetries(*c.MaxRetries))
	}
	return opts
}

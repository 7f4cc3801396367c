package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once

	cacheMu sync.Mutex
	cache   = make(map[reflect.Type]any)
)

// Load parses the environment into v using its `env` struct tags. The first
// call also loads a .env file from the working directory if one exists.
//
// Each struct type is parsed once per process and later calls copy the
// cached value, so the driver, queue and listener settings read at startup
// stay consistent even if the environment changes afterwards.
//
//	var qc queue.Config
//	if err := config.Load(&qc); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvOnce.Do(func() {
		// a missing .env file is fine
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}

	var out T
	if err := env.Parse(&out); err != nil {
		return errors.Join(ErrParsingConfig, fmt.Errorf("%s: %w", key, err))
	}
	cache[key] = out
	*v = out
	return nil
}

// MustLoad is Load for settings the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(err)
	}
}

// LoadEnv loads the given .env files into the process environment. Variables
// already set are kept and earlier files win over later ones. It only
// affects types not yet passed to Load.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// ResetCache drops every cached configuration.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	clear(cache)
}

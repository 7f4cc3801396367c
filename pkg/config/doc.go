// Package config loads typed configuration from environment variables and
// YAML files.
//
// Load parses the environment into a struct with `env` tags using
// github.com/caarlos0/env/v11, after loading a `.env` file from the working
// directory via github.com/joho/godotenv. Each struct type is parsed once and
// cached for the life of the process; ResetCache clears the cache in tests.
// LoadEnv loads additional .env files explicitly.
//
// LoadFile decodes a YAML document (gopkg.in/yaml.v3) after expanding
// environment references, and is used for the queue topology file.
//
// # Usage
//
//	var mongoCfg mongo.Config
//	if err := config.Load(&mongoCfg); err != nil {
//		return err
//	}
//
//	var topo queue.Topology
//	if err := config.LoadFile(path, &topo); err != nil {
//		return err
//	}
//
// # Error Handling
//
// Errors wrap ErrParsingConfig, ErrLoadingEnvFile, ErrReadingConfigFile or
// ErrParsingConfigFile together with the underlying cause; check them with
// errors.Is.
package config

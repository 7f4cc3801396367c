package config

import "errors"

var (
	ErrNilPointer        = errors.New("nil pointer provided to config loader")
	ErrParsingConfig     = errors.New("failed to parse environment variables into config")
	ErrLoadingEnvFile    = errors.New("failed to load env file")
	ErrReadingConfigFile = errors.New("failed to read config file")
	ErrParsingConfigFile = errors.New("failed to parse config file")
)

package config

import "errors"

var (
	// ErrConfigNotFound is returned when the configuration path does not exist.
	ErrConfigNotFound = errors.New("config: file not found")

	// ErrInvalidFormat is returned when a file cannot be decoded as an EngineConfig.
	ErrInvalidFormat = errors.New("config: malformed document")

	// ErrUnsupportedFormat is returned for extensions other than yaml, yml and json.
	ErrUnsupportedFormat = errors.New("config: unsupported file type")

	// ErrValidationFailed wraps the list of field errors from Validate.
	ErrValidationFailed = errors.New("config: validation failed")

	// ErrMissingEnvVar is returned when a ${VAR:?} reference or strict
	// expansion names an unset variable.
	ErrMissingEnvVar = errors.New("config: environment variable not set")
)

package contract

import "errors"

var (
	// ErrSpecNotFound indicates no contract exists for the operation.
	ErrSpecNotFound = errors.New("spec not found")
)

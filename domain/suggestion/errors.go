package suggestion

import "errors"

var (
	// ErrSuggestionNotFound indicates the suggestion was not found.
	ErrSuggestionNotFound = errors.New("suggestion not found")

	// ErrSuggestionExists indicates a suggestion with this ID already exists.
	ErrSuggestionExists = errors.New("suggestion already exists")

	// ErrInvalidSuggestion indicates the suggestion is invalid.
	ErrInvalidSuggestion = errors.New("invalid suggestion")

	// ErrInvalidStatus indicates an unknown or non-terminal decision status.
	ErrInvalidStatus = errors.New("invalid suggestion status")

	// ErrInvalidStatusTransition indicates an invalid status transition.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrGenerationFailed indicates suggestion generation failed.
	ErrGenerationFailed = errors.New("suggestion generation failed")

	// ErrLookupNotConfigured indicates variant generation has no spec lookup.
	ErrLookupNotConfigured = errors.New("spec lookup not configured")

	// ErrModelNotConfigured indicates model-backed generation has no model.
	ErrModelNotConfigured = errors.New("structured model not configured")

	// ErrStorageFailure indicates the backing store failed.
	ErrStorageFailure = errors.New("suggestion storage failure")

	// ErrRepositoryNotConfigured indicates the orchestrator has no repository.
	ErrRepositoryNotConfigured = errors.New("suggestion repository not configured")
)

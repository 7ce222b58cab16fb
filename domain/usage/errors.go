package usage

import "errors"

var (
	// ErrUnknownLifecycleStage indicates a lifecycle stage name is not recognized.
	ErrUnknownLifecycleStage = errors.New("unknown lifecycle stage")
)

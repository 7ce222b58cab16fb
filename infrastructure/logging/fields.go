package logging

import (
	"strconv"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/specflow/domain/intent"
	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/domain/usage"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Operation adds an operation coordinate field.
func Operation(c operation.Coordinate) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", c.Key())
	}
}

// OperationName adds an operation name field.
func OperationName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", name)
	}
}

// SuggestionID adds a suggestion ID field.
func SuggestionID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("suggestion_id", id)
	}
}

// Status adds a suggestion status field.
func Status(s suggestion.Status) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("status", string(s))
	}
}

// FromStatus adds a from_status field for lifecycle transitions.
func FromStatus(s suggestion.Status) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_status", string(s))
	}
}

// Reviewer adds a reviewer field.
func Reviewer(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reviewer", name)
	}
}

// IntentType adds an intent type field.
func IntentType(t intent.Type) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("intent", string(t))
	}
}

// Severity adds an anomaly severity field.
func Severity(s usage.Severity) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("severity", string(s))
	}
}

// Confidence adds a confidence score field.
func Confidence(score float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("confidence", strconv.FormatFloat(score, 'f', 3, 64))
	}
}

// Count adds a named count field.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// Location adds a materialized document location field.
func Location(loc string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("location", loc)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

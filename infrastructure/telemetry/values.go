package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/specflow/domain/operation"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// deref unwraps pointer values; nil pointers become nil.
func deref(v any) any {
	for v != nil {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer {
			return v
		}
		if rv.IsNil() {
			return nil
		}
		v = rv.Elem().Interface()
	}
	return v
}

func asString(v any) (string, bool) {
	switch x := deref(v).(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

func asFloat(v any) (float64, bool) {
	v = deref(v)
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	if s, ok := deref(v).(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		return n, err == nil
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// asVersion accepts numeric versions and strings such as "3" or "v3".
func asVersion(v any) (int, bool) {
	if s, ok := deref(v).(string); ok {
		s = strings.TrimPrefix(strings.TrimSpace(s), "v")
		n, err := strconv.Atoi(s)
		return n, err == nil
	}
	f, ok := asFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func asBool(v any) (bool, bool) {
	switch x := deref(v).(type) {
	case nil:
		return false, false
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "t", "yes":
			return true, true
		case "false", "0", "f", "no", "":
			return false, true
		}
		return false, false
	}
	f, ok := asFloat(v)
	if !ok {
		return false, false
	}
	return f != 0, true
}

// asTime accepts time values, formatted strings and unix timestamps. Numbers
// above 1e12 are treated as milliseconds.
func asTime(v any) (time.Time, bool) {
	switch x := deref(v).(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, !x.IsZero()
	case string:
		x = strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return unixTime(n), true
		}
		return time.Time{}, false
	}
	f, ok := asFloat(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	return unixTime(int64(f)), true
}

func unixTime(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// asMetadata accepts maps and JSON-encoded objects. Anything else yields nil.
func asMetadata(v any) operation.Metadata {
	switch x := deref(v).(type) {
	case map[string]any:
		return operation.Metadata(x).Clone()
	case operation.Metadata:
		return x.Clone()
	case map[string]string:
		out := make(operation.Metadata, len(x))
		for k, val := range x {
			out[k] = val
		}
		return out
	case string:
		return decodeMetadata([]byte(x))
	case []byte:
		return decodeMetadata(x)
	}
	return nil
}

func decodeMetadata(b []byte) operation.Metadata {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

package operation

import "maps"

// Metadata is a free-form key/value bag carried on samples, patterns and
// suggestions. Values must be JSON serializable; no shape is assumed.
type Metadata map[string]any

// Clone returns a shallow copy of the metadata. A nil bag stays nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Merge returns a new bag with the keys of other layered over m.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	maps.Copy(out, m)
	maps.Copy(out, other)
	return out
}

// String returns the value under key when it is a string.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Package contract provides the contract document model used by suggestions.
//
// The engine does not interpret contract schemas. A Spec is a set of named
// sections with opaque contents, enough to merge a patch onto a base and to
// read the identifying key.
package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/felixgeelhaar/specflow/domain/operation"
)

// Section names of a contract document.
const (
	SectionMeta        = "meta"
	SectionIO          = "io"
	SectionPolicy      = "policy"
	SectionTelemetry   = "telemetry"
	SectionSideEffects = "sideEffects"
)

// Section is the opaque contents of one contract section.
type Section map[string]any

// Spec is a contract document.
type Spec struct {
	Meta        Section
	IO          Section
	Policy      Section
	Telemetry   Section
	SideEffects Section

	// Fields holds any other top-level fields.
	Fields map[string]any
}

// Key returns the identifying key from the meta section.
func (s *Spec) Key() string {
	if s == nil || s.Meta == nil {
		return ""
	}
	key, _ := s.Meta["key"].(string)
	return key
}

// Clone returns a shallow copy of every section.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	return &Spec{
		Meta:        maps.Clone(s.Meta),
		IO:          maps.Clone(s.IO),
		Policy:      maps.Clone(s.Policy),
		Telemetry:   maps.Clone(s.Telemetry),
		SideEffects: maps.Clone(s.SideEffects),
		Fields:      maps.Clone(s.Fields),
	}
}

// Merge layers patch onto base. The named sections merge key by key and
// independently; other top-level fields in patch overwrite those in base.
// Neither argument is modified.
func Merge(base, patch *Spec) *Spec {
	if base == nil {
		return patch.Clone()
	}
	out := base.Clone()
	if patch == nil {
		return out
	}
	out.Meta = mergeSection(out.Meta, patch.Meta)
	out.IO = mergeSection(out.IO, patch.IO)
	out.Policy = mergeSection(out.Policy, patch.Policy)
	out.Telemetry = mergeSection(out.Telemetry, patch.Telemetry)
	out.SideEffects = mergeSection(out.SideEffects, patch.SideEffects)
	if len(patch.Fields) > 0 {
		if out.Fields == nil {
			out.Fields = make(map[string]any, len(patch.Fields))
		}
		maps.Copy(out.Fields, patch.Fields)
	}
	return out
}

func mergeSection(base, patch Section) Section {
	if patch == nil {
		return base
	}
	if base == nil {
		base = make(Section, len(patch))
	}
	maps.Copy(base, patch)
	return base
}

// MarshalJSON flattens the sections and extra fields into one object.
func (s Spec) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.Fields)+5)
	maps.Copy(doc, s.Fields)
	for name, sec := range s.sections() {
		if sec != nil {
			doc[name] = sec
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON splits a contract object into sections and extra fields.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Spec{}
	for name, value := range raw {
		target := s.sectionPtr(name)
		if target == nil {
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
			if s.Fields == nil {
				s.Fields = make(map[string]any)
			}
			s.Fields[name] = v
			continue
		}
		if err := json.Unmarshal(value, target); err != nil {
			return fmt.Errorf("section %s: %w", name, err)
		}
	}
	return nil
}

func (s *Spec) sections() map[string]Section {
	return map[string]Section{
		SectionMeta:        s.Meta,
		SectionIO:          s.IO,
		SectionPolicy:      s.Policy,
		SectionTelemetry:   s.Telemetry,
		SectionSideEffects: s.SideEffects,
	}
}

func (s *Spec) sectionPtr(name string) *Section {
	switch name {
	case SectionMeta:
		return &s.Meta
	case SectionIO:
		return &s.IO
	case SectionPolicy:
		return &s.Policy
	case SectionTelemetry:
		return &s.Telemetry
	case SectionSideEffects:
		return &s.SideEffects
	default:
		return nil
	}
}

// Lookup resolves the current contract for an operation. It returns
// ErrSpecNotFound, or a nil spec, when the operation has no contract.
type Lookup func(ctx context.Context, op operation.Coordinate) (*Spec, error)

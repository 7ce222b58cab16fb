// Package filesystem provides the filesystem writer for approved suggestions
// and the portable document format shared by object-store writers.
package filesystem

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/specflow/domain/contract"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// FileSuffix is appended to every materialized suggestion file name.
const FileSuffix = ".suggestion.json"

// Document is the materialized form of a suggestion. The contract is lifted
// out of the proposal with its identifying meta section separated from the
// rest of the body.
type Document struct {
	suggestion.Suggestion
	Spec *SpecDocument `json:"spec,omitempty"`
}

// SpecDocument splits a contract into meta and body.
type SpecDocument struct {
	Meta contract.Section `json:"meta"`
	Body map[string]any   `json:"body"`
}

// NewDocument builds the document for s. Timestamps are normalized to UTC.
func NewDocument(s *suggestion.Suggestion) (*Document, error) {
	c := s.Clone()
	c.CreatedAt = c.CreatedAt.UTC()
	if c.Approvals != nil {
		c.Approvals.DecidedAt = c.Approvals.DecidedAt.UTC()
	}

	doc := &Document{Suggestion: *c}
	if c.Proposal.Spec != nil {
		body := c.Proposal.Spec.Clone()
		meta := body.Meta
		body.Meta = nil

		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal spec body: %w", err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("unmarshal spec body: %w", err)
		}
		if meta == nil {
			meta = contract.Section{}
		}
		doc.Spec = &SpecDocument{Meta: meta, Body: fields}
		doc.Proposal.Spec = nil
	}
	return doc, nil
}

// ToSuggestion rebuilds the suggestion the document was made from.
func (d *Document) ToSuggestion() (*suggestion.Suggestion, error) {
	s := d.Suggestion.Clone()
	if d.Spec == nil {
		return s, nil
	}

	fields := make(map[string]any, len(d.Spec.Body)+1)
	for k, v := range d.Spec.Body {
		fields[k] = v
	}
	fields[contract.SectionMeta] = d.Spec.Meta

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal spec: %w", err)
	}
	var spec contract.Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	s.Proposal.Spec = &spec
	return s, nil
}

// Encode renders s as an indented document.
func Encode(s *suggestion.Suggestion) ([]byte, error) {
	doc, err := NewDocument(s)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a document produced by Encode.
func Decode(data []byte) (*suggestion.Suggestion, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc.ToSuggestion()
}

// FileName returns the file name for s: "<name>.v<version>" for the target
// operation, else the intent ID, else "next".
func FileName(s *suggestion.Suggestion) string {
	var base string
	switch {
	case s.Operation() != nil && s.Operation().Name != "":
		op := s.Operation()
		base = fmt.Sprintf("%s.v%d", op.Name, op.Version)
	case s.Intent.ID != "":
		base = s.Intent.ID
	default:
		base = "next"
	}
	return sanitize(base) + FileSuffix
}

var unsafeChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_", "..", "_")

func sanitize(name string) string {
	return unsafeChars.Replace(name)
}

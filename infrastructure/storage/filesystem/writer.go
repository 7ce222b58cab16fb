package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
)

// Writer implements suggestion.Writer on the local filesystem. Writing the
// same target again replaces the previous file.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir, creating it when missing.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Write materializes s and returns the file path.
func (w *Writer) Write(ctx context.Context, s *suggestion.Suggestion) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil {
		return "", suggestion.ErrInvalidSuggestion
	}

	data, err := Encode(s)
	if err != nil {
		return "", err
	}

	path := filepath.Join(w.dir, FileName(s))
	tmp, err := os.CreateTemp(w.dir, ".suggestion-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           // #nosec G104 -- best-effort cleanup in error path
		os.Remove(tmp.Name()) // #nosec G104 -- best-effort cleanup in error path
		return "", fmt.Errorf("failed to write suggestion: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) // #nosec G104 -- best-effort cleanup in error path
		return "", fmt.Errorf("failed to close suggestion file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name()) // #nosec G104 -- best-effort cleanup in error path
		return "", fmt.Errorf("failed to move suggestion file: %w", err)
	}

	logging.Debug().
		Add(logging.SuggestionID(s.ID)).
		Add(logging.Location(path)).
		Msg("suggestion written")

	return path, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// ReadFile reads a suggestion file written by Write.
func ReadFile(path string) (*suggestion.Suggestion, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the caller
	if err != nil {
		return nil, fmt.Errorf("failed to read suggestion file: %w", err)
	}
	return Decode(data)
}

var _ suggestion.Writer = (*Writer)(nil)

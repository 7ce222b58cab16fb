package suggestion

import "strings"

// ValidationResult reports every policy rule a suggestion violates.
type ValidationResult struct {
	OK      bool     `json:"ok"`
	Reasons []string `json:"reasons"`
}

// Error joins the reasons for display.
func (r ValidationResult) Error() string {
	return strings.Join(r.Reasons, "; ")
}

// Package specflow provides the version information for specflow.
package specflow

// Version is the current version of specflow.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}

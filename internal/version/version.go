// Package version reports the coordinator release embedded at build time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var release string

// Commit is the source revision, set with
// -ldflags "-X github.com/sauravmaulick/GenAICoordinator-Replit/internal/version.Commit=<sha>".
var Commit string

// Get returns the release number from the VERSION file.
func Get() string {
	return strings.TrimSpace(release)
}

// String returns the release number followed by the short commit when known.
func String() string {
	if Commit == "" {
		return Get()
	}
	c := Commit
	if len(c) > 12 {
		c = c[:12]
	}
	return Get() + " (" + c + ")"
}

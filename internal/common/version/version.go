package version

import (
	_ "embed"
	"strings"
)

// The VERSION file next to this source is embedded at compile time so the
// binary and the audit files always report the same release.

//go:embed VERSION
var versionRaw string

// Version is the release of reactivatetool, trimmed of whitespace.
var Version = strings.TrimSpace(versionRaw)

// Get returns the current version string.
func Get() string {
	return Version
}

// UserAgent identifies the tool to the vendor APIs.
func UserAgent() string {
	return "reactivatetool/" + Version
}

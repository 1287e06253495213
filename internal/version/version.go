// Package version holds build metadata stamped in via ldflags.
package version

// Overridden at build time with
// -ldflags "-X .../internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

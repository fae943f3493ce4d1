// Package version reports build metadata for the leadscout binary.
package version

// Version is set via -ldflags at build time; defaults to "dev" otherwise.
var Version = "dev"

// Commit is the git commit hash, set via -ldflags.
var Commit = "unknown"

// Get returns a human-readable version string for cobra's --version flag.
func Get() string {
	if Commit == "unknown" {
		return Version
	}
	return Version + " (" + Commit + ")"
}

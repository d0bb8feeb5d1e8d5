// Package version exposes build metadata set at link time.
package version

import (
	"fmt"
	"runtime"
)

// These variables are set at build time via ldflags.
var (
	// Version is the semantic version of the build (e.g., "v1.2.3")
	Version = "dev"

	// Commit is the git commit hash
	Commit = "unknown"

	// BuildDate is the date the binary was built
	BuildDate = "unknown"
)

// Info returns a formatted string with all version information.
func Info() string {
	return fmt.Sprintf(
		"Version:    %s\nCommit:     %s\nBuild Date: %s\nGo Version: %s",
		Version,
		Commit,
		BuildDate,
		runtime.Version(),
	)
}

// Short returns a compact version string.
func Short() string {
	if Commit != "unknown" && len(Commit) >= 7 {
		return fmt.Sprintf("%s-%s", Version, Commit[:7])
	}
	return Version
}

package version

import "fmt"

var (
	// Version contains the current version of intfreactor
	Version = "dev"

	// CommitHash contains the current git commit hash
	CommitHash = "unknown"

	// BuildTime contains the time of build
	BuildTime = "unknown"
)

// String formats the build information for --version.
func String() string {
	return fmt.Sprintf("intfreactor version %s (commit: %s, built at: %s)", Version, CommitHash, BuildTime)
}

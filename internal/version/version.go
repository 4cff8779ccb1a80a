// Package version holds build metadata, set at link time with
// -ldflags "-X chatrelay/internal/version.Version=...".
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("chatrelay %s (commit %s, built %s)", Version, Commit, Date)
}

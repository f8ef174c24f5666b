// Package version holds the build version of quill.
package version

import "fmt"

var (
	// Version is the semantic version, set at build time with -ldflags.
	Version = "0.1.0"

	// GitCommit is the commit the binary was built from.
	GitCommit = ""
)

// FullVersion returns the version with the commit, when known.
func FullVersion() string {
	if GitCommit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, GitCommit)
}

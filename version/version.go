// Package version holds build-time version information.
// Values are injected via -ldflags at release build time.
package version

import "runtime"

var (
	// GitRelease is the release tag (e.g. v0.3.1).
	GitRelease = "dev"
	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"
	// GitCommitDate is the commit date of GitCommit.
	GitCommitDate = "unknown"
	// GoInfo is the Go toolchain used for the build.
	GoInfo = runtime.Version()
)

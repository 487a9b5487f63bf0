// Package version records build metadata injected at link time via
// -ldflags "-X github.com/jackzampolin/distill/version.GitRelease=...".
package version

import "runtime"

var (
	// GitRelease is the release tag or branch name.
	GitRelease = "dev"

	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"

	// GitCommitDate is the date of that commit.
	GitCommitDate = "unknown"

	// GoInfo is the Go toolchain version.
	GoInfo = runtime.Version()
)

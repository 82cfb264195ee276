// Package version carries build metadata injected at link time.
package version

import "runtime"

// These are set via -ldflags at build time:
//
//	-X github.com/rowanlight/dramatis/version.GitRelease=v0.1.0
var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
)

// GoInfo is the Go toolchain version the binary was built with.
var GoInfo = runtime.Version()

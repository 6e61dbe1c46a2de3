// Package version holds build metadata injected at link time.
package version

import "runtime"

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/jackzampolin/folio/version.GitRelease=v0.1.0"
var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
)

// GoInfo reports the Go toolchain the binary was built with.
var GoInfo = runtime.Version()

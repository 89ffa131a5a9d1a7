// Package version carries build metadata injected by the linker.
package version

import "fmt"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/newtrace/pkg/version.Version=v1.0.0 \
//	  -X github.com/newtron-network/newtrace/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/newtrace/pkg/version.BuildDate=2026-01-01T00:00:00Z" \
//	  ./cmd/newtrace
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// IsRelease reports whether the binary was built with version ldflags.
func IsRelease() bool { return Version != "dev" }

// Line returns the one-line version banner of tool.
func Line(tool string) string {
	if !IsRelease() {
		return tool + " dev build"
	}
	return fmt.Sprintf("%s %s (%s, built %s)", tool, Version, GitCommit, BuildDate)
}

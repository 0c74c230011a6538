// Package version reports build metadata injected through ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the machine-readable form of the build metadata.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

// Current returns the build metadata for this binary.
func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date, Go: runtime.Version()}
}

func String() string {
	info := Current()
	return fmt.Sprintf("rehearse %s (commit=%s, date=%s, go=%s)", info.Version, info.Commit, info.Date, info.Go)
}

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the current application version.
// This is a var (not const) so it can be overridden at build time via:
//
//	go build -ldflags "-X github.com/vanderheijden86/bmo/pkg/version.Version=v1.2.3"
var Version = "v0.4.0"

// Commit is the VCS revision, filled from build info when not set by ldflags.
var Commit = ""

func revision() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return "unknown"
}

// String renders the version line printed by `bmo version`.
func String() string {
	return fmt.Sprintf("bmo %s (%s, %s/%s)", Version, revision(), runtime.GOOS, runtime.GOARCH)
}

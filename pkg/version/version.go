// Package version reports build information for the Kolibri commands.
package version

import (
	"fmt"
	"runtime/debug"
)

// Build information, set at build time via ldflags:
//
//	-ldflags "-X github.com/kolibri-protocol/kolibri-go/pkg/version.Version=1.2.0"
var (
	Version = "0.1.0"
	Commit  = ""
	Date    = "dev"
)

// Info is the build information of the running binary.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get returns the build information. A commit not set via ldflags is
// taken from the VCS stamp of the Go build, if any.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	if info.Commit == "" {
		info.Commit = vcsRevision()
	}
	return info
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "unknown"
}

// String formats the information for a -version flag.
func (i Info) String() string {
	return fmt.Sprintf("%s (built %s, commit %s)", i.Version, i.Date, i.Commit)
}

// Banner returns the -version output line for the named command.
func Banner(command string) string {
	return command + " " + Get().String()
}

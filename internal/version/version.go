// Package version carries the build identity stamped in by the release
// pipeline. Binaries built with 'go install' fall back to the module and VCS
// data embedded by the toolchain.
package version

import (
	"runtime"
	"runtime/debug"
)

// Name is the tool name reported in SARIF output and version strings
const Name = "pipescope"

// Set with -ldflags "-X github.com/felixgeelhaar/pipescope/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// readBuildInfo is replaced in tests
var readBuildInfo = debug.ReadBuildInfo

// GetInfo returns the ldflags values, completed from the embedded build info
// where they were left at their defaults.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// ShortCommit is the first 8 characters of the commit
func (i Info) ShortCommit() string {
	if len(i.Commit) > 8 {
		return i.Commit[:8]
	}
	return i.Commit
}

func (i Info) String() string {
	commit := i.ShortCommit()
	if i.Modified {
		commit += "-dirty"
	}
	return Name + " " + i.Version + " (" + commit + ") built " + i.Date + " with " + i.GoVersion + " for " + i.Platform
}

// Short returns just the version number
func (i Info) Short() string {
	return i.Version
}

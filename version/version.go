// Package version identifies a wptmeta build. Release builds stamp the
// variables below with -ldflags; any other build falls back to the module
// and VCS data the Go toolchain embeds in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Stamped at release time:
//
//	go build -ldflags "-X github.com/teranos/wptmeta/version.Version=v1.2.0 -X github.com/teranos/wptmeta/version.Commit=$(git rev-parse HEAD)"
var (
	// Version is the release tag
	Version = ""
	// Commit is the git revision the binary was built from
	Commit = ""
	// Date is the commit or build time, RFC 3339
	Date = ""
)

const unknown = "unknown"

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information of the running binary
func Get() Info {
	bi, _ := debug.ReadBuildInfo()
	return fromBuild(bi)
}

// fromBuild fills unstamped fields from embedded build info; bi may be nil
func fromBuild(bi *debug.BuildInfo) Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi != nil {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		if bi.GoVersion != "" {
			info.GoVersion = bi.GoVersion
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.Date == "" {
		info.Date = unknown
	}
	return info
}

// String renders the version line printed by `wptmeta version`
func (i Info) String() string {
	return fmt.Sprintf("wptmeta %s (commit %s, %s)", i.Version, i.Short(), i.Date)
}

// Short returns the abbreviated commit, marked when the tree was dirty
func (i Info) Short() string {
	c := i.Commit
	if len(c) > 12 {
		c = c[:12]
	}
	if i.Modified {
		c += "-dirty"
	}
	return c
}

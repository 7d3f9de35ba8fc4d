// Package buildinfo reports the version of the running binary.
//
// Release builds stamp the variables below with -ldflags "-X". Plain
// "go build" and "go install" binaries fall back to the VCS details the
// Go toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/nugget/kith/internal/buildinfo.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	GitBranch = ""
	BuildTime = ""
)

// Details is the build metadata of the running binary.
type Details struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch,omitempty"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get returns the stamped metadata, completed from the toolchain's
// embedded build settings where nothing was stamped.
func Get() Details {
	d := Details{
		Version:   Version,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fill(&d, bi)
	}
	if d.GitCommit == "" {
		d.GitCommit = "unknown"
	}
	if d.BuildTime == "" {
		d.BuildTime = "unknown"
	}
	return d
}

func fill(d *Details, bi *debug.BuildInfo) {
	if d.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		d.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if d.GitCommit == "" {
				d.GitCommit = s.Value
				if len(d.GitCommit) > 12 {
					d.GitCommit = d.GitCommit[:12]
				}
			}
		case "vcs.time":
			if d.BuildTime == "" {
				d.BuildTime = s.Value
			}
		case "vcs.modified":
			d.Modified = s.Value == "true"
		}
	}
}

// UserAgent is sent on every outbound model request.
func UserAgent() string {
	return fmt.Sprintf("kith/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// String returns a one-line summary.
func (d Details) String() string {
	s := fmt.Sprintf("kith %s (%s", d.Version, d.GitCommit)
	if d.GitBranch != "" {
		s += "@" + d.GitBranch
	}
	if d.Modified {
		s += ", modified"
	}
	return s + ") built " + d.BuildTime
}

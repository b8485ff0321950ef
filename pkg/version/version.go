// Package version exposes build metadata. Release builds inject it through
// -ldflags; `go install` builds fall back to the embedded module info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Program is the binary name reported by String and used as the trace service name.
const Program = "logmail"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
	Platform  = runtime.GOOS + "/" + runtime.GOARCH
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// BuildInfo is served by `logmail version` and GET /api/buildinfo.
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string    `json:"buildDate" yaml:"buildDate"`
	GoVersion string    `json:"goVersion" yaml:"goVersion"`
	Platform  string    `json:"platform" yaml:"platform"`
	Modified  bool      `json:"modified,omitempty" yaml:"modified,omitempty"`
	BuildTime time.Time `json:"buildTime,omitempty" yaml:"buildTime,omitempty"`
}

func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
		Platform:  Platform,
	}
	fillFromModule(&info)

	if t, err := time.Parse(time.RFC3339, info.BuildDate); err == nil {
		info.BuildTime = t
	}
	return info
}

// fillFromModule replaces values that -ldflags left at their defaults.
func fillFromModule(info *BuildInfo) {
	bi, ok := readBuildInfo()
	if !ok {
		return
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String renders a single human readable line.
func (b BuildInfo) String() string {
	commit := b.GitCommit
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s %s (commit %s, built %s, %s %s)",
		Program, b.Version, commit, b.BuildDate, b.GoVersion, b.Platform)
}

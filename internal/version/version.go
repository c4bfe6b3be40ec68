package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the application version, set via ldflags during build.
	Version = "dev"
	// GitCommit is the git commit hash, set via ldflags during build.
	GitCommit = "unknown"
	// BuildDate is the build timestamp, set via ldflags during build.
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"3f2c1ab" doc:"Source revision"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:05Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain"`
	Platform  string `json:"platform" example:"windows/amd64" doc:"Target OS and architecture"`
}

// Get returns version and build information. A commit not set through
// ldflags falls back to the VCS revision stamped by the go tool.
func Get() Info {
	commit := GitCommit
	if commit == "unknown" {
		if rev, ok := vcsRevision(); ok {
			commit = rev
		}
	}
	return Info{
		Version:   Version,
		GitCommit: commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns the application version string.
func String() string {
	if GitCommit == "unknown" {
		return Version
	}
	short := GitCommit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s (%s)", Version, short)
}

func vcsRevision() (string, bool) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value, true
		}
	}
	return "", false
}

// Package version holds the agent's semantic version and build information.
package version

import (
	"fmt"
	"runtime"
)

const (
	Major      = 1
	Minor      = 2
	Patch      = 0
	PreRelease = ""

	AgentName = "Coin Pulse Sentiment Agent"
)

// Set at build time with -ldflags "-X coinpulse/pkg/version.GitCommit=...".
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	AgentName string `json:"agent_name"`
}

// Version returns "major.minor.patch[-prerelease]".
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
	if PreRelease != "" {
		v += "-" + PreRelease
	}
	return v
}

func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version(),
		Major:     Major,
		Minor:     Minor,
		Patch:     Patch,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		AgentName: AgentName,
	}
}

// GetFullVersionString returns e.g. "Coin Pulse Sentiment Agent v1.2.0 (commit abc, go1.25)".
func GetFullVersionString() string {
	info := GetBuildInfo()
	return fmt.Sprintf("%s v%s (commit %s, %s)", info.AgentName, info.Version, info.GitCommit, info.GoVersion)
}

func IsPreRelease() bool {
	return PreRelease != ""
}

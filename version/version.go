// Package version reports what build of sdzerobot is running.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Set at build time with -ldflags "-X github.com/sdzerobot/sdzerobot/version.Version=..."
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("sdzerobot %s (commit %s, built %s)", i.Version, i.Short(), i.BuildTime)
}

// Short returns the abbreviated commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// UserAgent appends the bot version to a configured user agent, as the
// Wikimedia User-Agent policy asks for. A base that already names
// sdzerobot is returned unchanged.
func (i Info) UserAgent(base string) string {
	product := "sdzerobot/" + i.Version
	base = strings.TrimSpace(base)
	switch {
	case base == "":
		return product
	case strings.Contains(strings.ToLower(base), "sdzerobot/"):
		return base
	default:
		return base + " " + product
	}
}

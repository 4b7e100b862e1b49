package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// Link-time values.
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Info is the build description served by /info and `nodeflow version`.
type Info struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime string    `json:"build_time"`
	GoVersion string    `json:"go_version"`
	BuildDate time.Time `json:"build_date"`
	IsRelease bool      `json:"is_release"`
	IsDirty   bool      `json:"is_dirty"`
}

// GetVersionInfo merges link-time values with the binary's build info.
func GetVersionInfo() *Info {
	info := &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}
	if BuildTime != "" {
		if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
			info.BuildDate = t
		}
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyBuildInfo(info, bi)
	}
	info.IsRelease = info.Version != "dev" && !info.IsDirty
	return info
}

func applyBuildInfo(info *Info, bi *debug.BuildInfo) {
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = shortCommit(s.Value)
			}
		case "vcs.modified":
			info.IsDirty = s.Value == "true"
		case "vcs.time":
			if info.BuildTime == "" {
				if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
					info.BuildDate = t
					info.BuildTime = s.Value
				}
			}
		}
	}
}

func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// String renders the one-line form, e.g. "1.2.0 (abc1234, dirty)".
func (i *Info) String() string {
	var extra []string
	if i.GitCommit != "" {
		extra = append(extra, i.GitCommit)
	}
	if i.IsDirty {
		extra = append(extra, "dirty")
	}
	if !i.BuildDate.IsZero() {
		extra = append(extra, "built "+i.BuildDate.UTC().Format("2006-01-02"))
	}
	if len(extra) == 0 {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, strings.Join(extra, ", "))
}

// Short returns "<version>-<commit>" or just the version.
func Short() string {
	info := GetVersionInfo()
	if info.GitCommit == "" {
		return info.Version
	}
	return info.Version + "-" + info.GitCommit
}

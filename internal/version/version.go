// Package version reports build metadata stamped in at link time.
package version

// Set via -ldflags, for example:
//
//	-X github.com/samcharles93/crucible/internal/version.Version=v0.3.0
var (
	// Version is the release version.
	Version = ""
	// Commit is the git commit hash.
	Commit = ""
	// BuildTime is the build timestamp.
	BuildTime = ""
)

// Info is the resolved build metadata.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Resolve returns the stamped build metadata. Unstamped builds report
// version "dev".
func Resolve() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

// String renders the info as "version (commit)", abbreviating the commit
// the way git does.
func (i Info) String() string {
	if i.Commit == "" {
		return i.Version
	}
	return i.Version + " (" + short(i.Commit) + ")"
}

// String renders the resolved build version.
func String() string {
	return Resolve().String()
}

func short(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

// Package version holds build metadata injected via ldflags, e.g.
//
//	-X github.com/kailas-cloud/dmodel/internal/version.Version=v0.4.0
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build metadata as "version (commit, date)".
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}

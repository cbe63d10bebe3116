// Package version carries the build metadata stamped into release binaries.
//
// The release script overrides these with ldflags, e.g.:
//
//	go build -ldflags "-X github.com/leowzhang/fundwatch/internal/version.Version=0.3.1 \
//	                   -X github.com/leowzhang/fundwatch/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/leowzhang/fundwatch/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the release tag; "dev" for local builds.
	Version = "dev"

	// Commit is the short git hash the binary was built from.
	Commit = "unknown"

	// BuildTime is when the binary was built, UTC ISO 8601.
	BuildTime = "unknown"
)

// String renders the three fields as one human-readable line.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

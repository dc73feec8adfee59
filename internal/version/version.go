// Package version holds build metadata, set with -ldflags at release time:
//
//	go build -ldflags "-X github.com/banshee-data/arpositioning/internal/version.Version=v0.3.0" ./cmd/arpos
package version

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

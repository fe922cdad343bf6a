package config

// Linker-injected build metadata, set via -ldflags:
//
//	go build -ldflags "-X delaywatch/internal/config.version=1.2.3 \
//	    -X delaywatch/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X delaywatch/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// String renders the build as "version (commit, buildTime)".
func (b BuildInfo) String() string {
	return b.Version + " (" + b.Commit + ", " + b.BuildTime + ")"
}

package version

import "fmt"

// Set at build time with -ldflags "-X".
var (
	Version     = "0.1.0"
	Prerelease  = "dev"
	BuildTime   = "unknown"
	BuildCommit = "unknown"
)

// Get returns the version string including the prerelease suffix, if any.
func Get() string {
	if Prerelease == "" {
		return Version
	}
	return fmt.Sprintf("%s-%s", Version, Prerelease)
}

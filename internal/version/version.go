// Package version holds the build version, injected at link time via
// -ldflags "-X github.com/seatwise/seatwise/internal/version.Version=...".
package version

// Version is the build version string.
var Version = "dev"

// Package version holds the build version, overridden at link time with
// -ldflags "-X github.com/alvmarrod/citation-weaver/internal/version.Version=..."
package version

// Version of the crawler binary
var Version = "0.1.0-dev"

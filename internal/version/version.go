// Package version provides build version information.
package version

// Version is set via ldflags at build time.
var Version = "dev"

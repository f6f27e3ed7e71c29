// Package version exposes the build version, injected at link time.
package version

// Version is overridden by the release build with
// -ldflags "-X wayfarer/pkg/version.Version=v1.2.3".
var Version = "dev"

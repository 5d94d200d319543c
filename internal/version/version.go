// Package version exposes the build version for diagnostics.
package version

import "runtime/debug"

// Version is overridable at build time via -ldflags.
var Version = "dev"

// String returns the explicit version when set, otherwise the module
// version recorded in build info.
func String() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

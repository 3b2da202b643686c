// Package buildinfo carries release metadata stamped in at link time, e.g.
//
//	go build -ldflags "-X github.com/aidanlsb/kiln/internal/buildinfo.Version=v0.1.0"
//
// `kiln version` prefers the module build info and falls back to these.
package buildinfo

// Empty for local builds.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

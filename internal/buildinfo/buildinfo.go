// Package buildinfo provides build version and metadata information.
package buildinfo

import "runtime/debug"

// Version metadata is injected at build time via ldflags.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Summary returns a human-readable version summary string.
func Summary() string {
	version := Version
	if version == "" {
		version = "dev"
	}
	commit := Commit
	if commit == "" {
		commit = vcsRevision()
	}
	parts := version
	if commit != "" {
		parts += " (" + commit
		if Date != "" {
			parts += " " + Date
		}
		parts += ")"
	} else if Date != "" {
		parts += " (" + Date + ")"
	}
	return parts
}

// String prefixes Summary with the command name, as printed by --version.
func String(command string) string {
	return command + " " + Summary()
}

// vcsRevision falls back to the revision the Go toolchain stamped into the
// binary, shortened to 12 characters.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}

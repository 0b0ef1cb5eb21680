package core

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Version of this ammanctl build
var Version = resolveVersion(debug.ReadBuildInfo())

// resolveVersion prefers the module version of tagged releases and falls
// back to the VCS revision for local builds.
func resolveVersion(info *debug.BuildInfo, ok bool) string {
	if !ok || info == nil {
		return "devel"
	}

	// pseudo-versions are local builds, the VCS info says more
	if v := info.Main.Version; v != "" && v != "(devel)" && !isPseudoVersion(v) {
		return v
	}

	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return "devel"
	}

	if len(revision) > 7 {
		revision = revision[:7]
	}
	version := fmt.Sprintf("devel-%s", revision)
	if dirty {
		version += "-dirty"
	}
	return version
}

// FormatVersion strips the "v" prefix of tagged releases for display.
//   - "v1.2.0" → "1.2.0"
//   - "devel-ad721b3-dirty" → "devel-ad721b3-dirty"
func FormatVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isPseudoVersion reports whether v ends in the 12 hex digit commit hash of
// a Go pseudo-version, e.g. v0.0.0-20260217105831-82903d1d8810.
func isPseudoVersion(v string) bool {
	if i := strings.Index(v, "+"); i >= 0 {
		v = v[:i]
	}
	i := strings.LastIndex(v, "-")
	if i < 0 {
		return false
	}
	hash := v[i+1:]
	if len(hash) != 12 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

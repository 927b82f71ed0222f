package domain

import (
	"strings"

	"golang.org/x/mod/semver"
)

// NormalizeSemver accepts versions with or without the leading "v" and
// returns the canonical form x/mod/semver expects.
func NormalizeSemver(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if !strings.HasPrefix(trimmed, "v") {
		trimmed = "v" + trimmed
	}
	if !semver.IsValid(trimmed) {
		return "", false
	}
	return semver.Canonical(trimmed), true
}

// VersionAtLeast reports whether have >= min. An unparsable have never
// satisfies a minimum; an empty min is always satisfied.
func VersionAtLeast(have, min string) bool {
	if strings.TrimSpace(min) == "" {
		return true
	}
	wantVersion, ok := NormalizeSemver(min)
	if !ok {
		return false
	}
	haveVersion, ok := NormalizeSemver(have)
	if !ok {
		return false
	}
	return semver.Compare(haveVersion, wantVersion) >= 0
}

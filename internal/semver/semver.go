// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package semver provides version canonicalization and affected-range
// checks shared by all ecosystems.
//
// Versions from every ecosystem are mapped onto golang.org/x/mod/semver:
// a leading "v" or "go" is normalized, and versions that remain invalid
// are treated as unknown. Unknown versions are always considered affected.
package semver

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// RangeType is the type of an affected range.
type RangeType string

const (
	RangeTypeSemver    RangeType = "SEMVER"
	RangeTypeEcosystem RangeType = "ECOSYSTEM"
	RangeTypeGit       RangeType = "GIT"
)

// RangeEvent is one event of an affected range. Exactly one field is set.
type RangeEvent struct {
	Introduced   string `json:"introduced,omitempty" yaml:"introduced,omitempty"`
	Fixed        string `json:"fixed,omitempty" yaml:"fixed,omitempty"`
	LastAffected string `json:"last_affected,omitempty" yaml:"last_affected,omitempty"`
}

// Range is a list of events describing affected versions, in the OSV sense.
type Range struct {
	Type   RangeType    `json:"type" yaml:"type"`
	Events []RangeEvent `json:"events" yaml:"events"`
}

// addSemverPrefix adds a 'v' prefix to s if it isn't already prefixed
// with 'v' or 'go'. This allows us to easily test go-style SEMVER
// strings against normal SEMVER strings.
func addSemverPrefix(s string) string {
	if !strings.HasPrefix(s, "v") && !strings.HasPrefix(s, "go") {
		return "v" + s
	}
	return s
}

// removeSemverPrefix removes the 'v' or 'go' prefixes from go-style
// SEMVER strings.
func removeSemverPrefix(s string) string {
	s = strings.TrimPrefix(s, "v")
	s = strings.TrimPrefix(s, "go")
	return s
}

// canonicalizeSemverPrefix turns a SEMVER string into the canonical
// representation using the 'v' prefix.
// Input may be a bare SEMVER ("1.2.3"), Go prefixed SEMVER ("go1.2.3"),
// or already canonical SEMVER ("v1.2.3").
func canonicalizeSemverPrefix(s string) string {
	return addSemverPrefix(removeSemverPrefix(s))
}

var (
	// Regexp for matching go tags. The groups are:
	// 1  the major.minor version
	// 2  the patch version, or empty if none
	// 3  the entire prerelease, if present
	// 4  the prerelease type ("beta" or "rc")
	// 5  the prerelease number
	tagRegexp = regexp.MustCompile(`^go(\d+\.\d+)(\.\d+|)((beta|rc|-pre)(\d+))?$`)
)

// GoTagToSemver converts a Go tag like "go1.20.1" or "go1.21rc2" into
// a semantic version string. It returns "" if the tag is not recognized.
func GoTagToSemver(tag string) string {
	if tag == "" {
		return ""
	}
	tag = strings.Fields(tag)[0]
	m := tagRegexp.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	version := "v" + m[1]
	if m[2] != "" {
		version += m[2]
	} else {
		version += ".0"
	}
	if m[3] != "" {
		if !strings.HasPrefix(m[4], "-") {
			version += "-"
		}
		version += m[4] + "." + m[5]
	}
	return version
}

// Canonical returns the canonical semantic version of v, or "" if v
// is not a recognizable version.
func Canonical(v string) string {
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "go") {
		if s := GoTagToSemver(v); s != "" {
			return s
		}
	}
	return semver.Canonical(canonicalizeSemverPrefix(v))
}

// Valid reports whether v is a recognizable version.
func Valid(v string) bool {
	return Canonical(v) != ""
}

// Less returns whether v1 < v2, where v1 and v2 are
// semver versions with either a "v", "go" or no prefix.
func Less(v1, v2 string) bool {
	return semver.Compare(canonicalizeSemverPrefix(v1), canonicalizeSemverPrefix(v2)) < 0
}

// Compare is like golang.org/x/mod/semver.Compare on canonicalized versions.
func Compare(v1, v2 string) int {
	return semver.Compare(Canonical(v1), Canonical(v2))
}

func (r Range) contains(v string) bool {
	if len(r.Events) == 0 {
		return true
	}
	var affected bool
	for _, e := range r.Events {
		switch {
		case !affected && e.Introduced != "":
			affected = e.Introduced == "0" || semver.Compare(v, Canonical(e.Introduced)) >= 0
		case affected && e.Fixed != "":
			affected = semver.Compare(v, Canonical(e.Fixed)) < 0
		case affected && e.LastAffected != "":
			affected = semver.Compare(v, Canonical(e.LastAffected)) <= 0
		}
	}
	return affected
}

// Affects reports whether version v is affected by ranges.
//
// No ranges, or no range this package can evaluate, means all versions
// are affected. A version that cannot be parsed is also considered
// affected: missing a real vulnerability is worse than reporting a
// spurious one.
func Affects(ranges []Range, v string) bool {
	if len(ranges) == 0 {
		return true
	}
	cv := Canonical(v)
	if cv == "" {
		return true
	}
	var evaluable bool
	for _, r := range ranges {
		if r.Type == RangeTypeGit {
			continue
		}
		evaluable = true
		if r.contains(cv) {
			return true
		}
	}
	return !evaluable
}

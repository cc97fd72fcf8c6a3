// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package osv implements the OSV shared vulnerability
// format, as defined by https://github.com/ossf/osv-schema.
//
// Only the fields the engine uses are implemented. Unlike the Go
// vulnerability database, entries from any ecosystem are accepted.
package osv

import (
	"time"
)

type RangeType string

const (
	RangeTypeSemver    RangeType = "SEMVER"
	RangeTypeEcosystem RangeType = "ECOSYSTEM"
	RangeTypeGit       RangeType = "GIT"
)

type Ecosystem string

const GoEcosystem Ecosystem = "Go"

type Package struct {
	Name      string    `json:"name"`
	Ecosystem Ecosystem `json:"ecosystem"`
}

// RangeEvent describes a single event in a range. Exactly one field is set.
type RangeEvent struct {
	Introduced   string `json:"introduced,omitempty"`
	Fixed        string `json:"fixed,omitempty"`
	LastAffected string `json:"last_affected,omitempty"`
}

type Range struct {
	Type   RangeType    `json:"type"`
	Events []RangeEvent `json:"events"`
}

type Reference struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Affected struct {
	Package Package `json:"package"`
	Ranges  []Range `json:"ranges,omitempty"`

	// Versions enumerates affected versions, in addition to Ranges.
	Versions []string `json:"versions,omitempty"`

	EcosystemSpecific *EcosystemSpecific `json:"ecosystem_specific,omitempty"`
}

// EcosystemSpecific holds the vulnerable symbols of an affected package.
//
// The Go vulnerability database lists symbols per imported package in
// Imports; other databases list them directly in Symbols.
type EcosystemSpecific struct {
	Imports []Import `json:"imports,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
}

// Import is a package within a Go module.
type Import struct {
	// Path is the package import path.
	Path string `json:"path,omitempty"`

	GOOS   []string `json:"goos,omitempty"`
	GOARCH []string `json:"goarch,omitempty"`

	// Symbols lists vulnerable functions and methods, relative to Path,
	// such as "Parse" or "T.Method". No symbols means the whole package.
	Symbols []string `json:"symbols,omitempty"`
}

// Entry represents a OSV style JSON vulnerability database
// entry
type Entry struct {
	SchemaVersion string      `json:"schema_version,omitempty"`
	ID            string      `json:"id"`
	Modified      time.Time   `json:"modified,omitempty"`
	Published     time.Time   `json:"published,omitempty"`
	Withdrawn     *time.Time  `json:"withdrawn,omitempty"`
	Aliases       []string    `json:"aliases,omitempty"`
	Summary       string      `json:"summary,omitempty"`
	Details       string      `json:"details,omitempty"`
	Affected      []Affected  `json:"affected"`
	References    []Reference `json:"references,omitempty"`
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package manifest reads dependency manifests: the ordered list of packages
// of a build, with optional declared dependency edges between them.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"golang.org/x/vulnreach/internal/derrors"
	"golang.org/x/vulnreach/internal/ir"
	"gopkg.in/yaml.v2"
)

// Entry is one package of a manifest.
type Entry struct {
	Ecosystem ir.Ecosystem `yaml:"ecosystem" json:"ecosystem"`
	Name      string       `yaml:"name" json:"name"`
	Version   string       `yaml:"version,omitempty" json:"version,omitempty"`

	// Requires lists the declared dependencies of the package, each as
	// "name" or "name@version" within the same ecosystem.
	Requires []string `yaml:"requires,omitempty" json:"requires,omitempty"`

	// Main marks the application being analyzed.
	Main bool `yaml:"main,omitempty" json:"main,omitempty"`
}

// ID returns the identity of e.
func (e *Entry) ID() ir.PackageID {
	return ir.PackageID{Ecosystem: e.Ecosystem, Name: e.Name, Version: e.Version}
}

// Manifest is an ordered list of packages.
type Manifest struct {
	Packages []*Entry `yaml:"packages" json:"packages"`
}

// Error describes a problem with one manifest entry.
type Error struct {
	Index int
	Entry string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("manifest entry %d (%s): %s", e.Index, e.Entry, e.Msg)
}

// Parse parses a YAML or JSON manifest.
func Parse(data []byte) (_ *Manifest, err error) {
	defer derrors.Wrap(&err, "manifest.Parse")

	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, err
	}
	if err := m.normalize(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads the manifest at path. A file named go.mod is read with
// FromGoMod; anything else with Parse.
func Load(path string) (_ *Manifest, err error) {
	defer derrors.Wrap(&err, "manifest.Load(%q)", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, "go.mod") {
		return FromGoMod(path, data)
	}
	return Parse(data)
}

// FromGoMod builds a manifest from a go.mod file. The main module is the
// first entry and requires every listed module; replacements with a
// version are honored.
func FromGoMod(path string, data []byte) (_ *Manifest, err error) {
	defer derrors.Wrap(&err, "manifest.FromGoMod(%q)", path)

	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, err
	}
	if f.Module == nil {
		return nil, fmt.Errorf("no module directive")
	}
	replaced := make(map[string]module.Version)
	for _, r := range f.Replace {
		if r.New.Version == "" {
			// Directory replacements have no version to resolve.
			continue
		}
		// An empty old version replaces every version of the path.
		replaced[r.Old.Path+"@"+r.Old.Version] = r.New
	}
	root := &Entry{Ecosystem: ir.Go, Name: f.Module.Mod.Path, Main: true}
	m := &Manifest{Packages: []*Entry{root}}
	for _, r := range f.Require {
		mod := r.Mod
		if nv, ok := replaced[mod.Path+"@"+mod.Version]; ok {
			mod = nv
		} else if nv, ok := replaced[mod.Path+"@"]; ok {
			mod = nv
		}
		m.Packages = append(m.Packages, &Entry{Ecosystem: ir.Go, Name: mod.Path, Version: mod.Version})
		root.Requires = append(root.Requires, mod.Path)
	}
	if err := m.normalize(); err != nil {
		return nil, err
	}
	return m, nil
}

// normalize validates entries and merges duplicate identities, keeping
// the first occurrence's position.
func (m *Manifest) normalize() error {
	seen := make(map[ir.PackageID]*Entry)
	var out []*Entry
	for i, e := range m.Packages {
		if e == nil {
			return &Error{Index: i, Msg: "empty entry"}
		}
		if e.Name == "" {
			return &Error{Index: i, Entry: e.ID().String(), Msg: "missing name"}
		}
		if e.Ecosystem == "" {
			return &Error{Index: i, Entry: e.Name, Msg: "missing ecosystem"}
		}
		if e.Ecosystem == ir.Go {
			if err := module.CheckImportPath(e.Name); err != nil {
				return &Error{Index: i, Entry: e.ID().String(), Msg: err.Error()}
			}
		}
		if prev, ok := seen[e.ID()]; ok {
			prev.Requires = appendUnique(prev.Requires, e.Requires...)
			prev.Main = prev.Main || e.Main
			continue
		}
		seen[e.ID()] = e
		out = append(out, e)
	}
	m.Packages = out
	return nil
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, l := range list {
			if l == it {
				found = true
				break
			}
		}
		if !found {
			list = append(list, it)
		}
	}
	return list
}

// DeclaresEdges reports whether any entry declares dependencies. When
// none does, the manifest carries no scoping information and every
// package may see every other.
func (m *Manifest) DeclaresEdges() bool {
	for _, e := range m.Packages {
		if len(e.Requires) > 0 {
			return true
		}
	}
	return false
}

// Deps resolves the Requires of entry i to package identities within
// the manifest. A bare name matches every version of that name; unknown
// requirements are returned separately.
func (m *Manifest) Deps(i int) (deps []ir.PackageID, unknown []string) {
	e := m.Packages[i]
	for _, req := range e.Requires {
		name, version, hasVersion := strings.Cut(req, "@")
		if strings.HasPrefix(req, "@") {
			// npm scoped package: "@scope/name" or "@scope/name@1.0.0".
			n, v, ok := strings.Cut(req[1:], "@")
			name, version, hasVersion = "@"+n, v, ok
		}
		var found bool
		for _, o := range m.Packages {
			if o.Ecosystem != e.Ecosystem || ir.NormalizeName(o.Ecosystem, o.Name) != ir.NormalizeName(e.Ecosystem, name) {
				continue
			}
			if hasVersion && o.Version != version {
				continue
			}
			deps = append(deps, o.ID())
			found = true
		}
		if !found {
			unknown = append(unknown, req)
		}
	}
	return deps, unknown
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/module"
	"golang.org/x/vulnreach/internal/config"
	"golang.org/x/vulnreach/internal/ir"
)

// A Location is a place package sources may be found, such as a vendor
// directory or a shared package cache.
type Location interface {
	// Name describes the location for diagnostics.
	Name() string

	// Candidates returns the existing directories that may hold the
	// source of id, sorted. A location that has no copy of id returns
	// no candidates and no error.
	Candidates(ctx context.Context, id ir.PackageID) ([]string, error)
}

// FromConfig returns the locations described by cfg, in order.
func FromConfig(locs []config.Location) []Location {
	var out []Location
	for _, l := range locs {
		switch l.Kind {
		case config.LocationVendor:
			out = append(out, VendorDir(l.Path))
		case config.LocationGoModCache:
			out = append(out, GoModCache(l.Path))
		case config.LocationCache:
			out = append(out, CacheDir(l.Path))
		}
	}
	return out
}

// VendorDir returns a location for a directory of vendored sources, laid
// out the way each ecosystem's package manager materializes them:
//
//	Go    <root>/<module path>
//	npm   <root>/<name> and nested <root>/<pkg>/node_modules/<name>
//	PyPI  <root>/<import name>, matched case-insensitively
//	other <root>/<name>@<version> or <root>/<name>-<version>
func VendorDir(root string) Location {
	return vendorDir(root)
}

type vendorDir string

func (v vendorDir) Name() string { return "vendor:" + string(v) }

func (v vendorDir) Candidates(ctx context.Context, id ir.PackageID) ([]string, error) {
	root := string(v)
	switch id.Ecosystem {
	case ir.Go:
		return existingDirs(filepath.Join(root, filepath.FromSlash(id.Name)))
	case ir.NPM:
		return npmCandidates(root, id)
	case ir.PyPI:
		return pypiCandidates(root, id)
	default:
		return existingDirs(
			filepath.Join(root, id.Name+"@"+id.Version),
			filepath.Join(root, id.Name+"-"+id.Version))
	}
}

// npmCandidates finds copies of id hoisted at root or nested one level
// below another package. A copy whose package.json names a different
// version is not a candidate.
func npmCandidates(root string, id ir.PackageID) ([]string, error) {
	paths := []string{filepath.Join(root, filepath.FromSlash(id.Name))}
	nested, err := filepath.Glob(filepath.Join(root, "*", "node_modules", filepath.FromSlash(id.Name)))
	if err != nil {
		return nil, err
	}
	paths = append(paths, nested...)
	scoped, err := filepath.Glob(filepath.Join(root, "@*", "*", "node_modules", filepath.FromSlash(id.Name)))
	if err != nil {
		return nil, err
	}
	paths = append(paths, scoped...)

	dirs, err := existingDirs(paths...)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, d := range dirs {
		if v, ok := packageJSONVersion(d); ok && id.Version != "" && v != id.Version {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// packageJSONVersion reports the version in dir/package.json, if readable.
func packageJSONVersion(dir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return "", false
	}
	var pj struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &pj); err != nil || pj.Version == "" {
		return "", false
	}
	return pj.Version, true
}

// pypiCandidates matches directories of root whose normalized name equals
// the normalized package name. Distributions whose import name differs
// from the distribution name are not found here.
func pypiCandidates(root string, id ir.PackageID) ([]string, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	want := ir.NormalizeName(ir.PyPI, id.Name)
	var out []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasSuffix(e.Name(), ".dist-info") || strings.HasSuffix(e.Name(), ".egg-info") {
			continue
		}
		if ir.NormalizeName(ir.PyPI, e.Name()) == want {
			out = append(out, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// GoModCache returns a location for a Go module cache directory
// (GOMODCACHE), holding modules at <dir>/<escaped path>@<escaped version>.
func GoModCache(dir string) Location {
	return goModCache(dir)
}

type goModCache string

func (c goModCache) Name() string { return "gomodcache:" + string(c) }

func (c goModCache) Candidates(ctx context.Context, id ir.PackageID) ([]string, error) {
	if id.Ecosystem != ir.Go || id.Version == "" {
		return nil, nil
	}
	p, err := module.EscapePath(id.Name)
	if err != nil {
		return nil, nil
	}
	v, err := module.EscapeVersion(id.Version)
	if err != nil {
		return nil, nil
	}
	return existingDirs(filepath.Join(string(c), filepath.FromSlash(p)+"@"+v))
}

// CacheDir returns a location for a generic package cache laid out as
// <dir>/<ecosystem>/<name>/<version>.
func CacheDir(dir string) Location {
	return cacheDir(dir)
}

type cacheDir string

func (c cacheDir) Name() string { return "cache:" + string(c) }

func (c cacheDir) Candidates(ctx context.Context, id ir.PackageID) ([]string, error) {
	if id.Version == "" {
		return nil, nil
	}
	return existingDirs(filepath.Join(string(c), string(id.Ecosystem), filepath.FromSlash(id.Name), id.Version))
}

// existingDirs returns the sorted, de-duplicated subset of paths that
// are directories.
func existingDirs(paths ...string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range paths {
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		// Anything that cannot be stat'ed is absent; an absent package
		// ends up Missing and is handled conservatively downstream.
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		if fi.IsDir() {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

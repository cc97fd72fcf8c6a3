// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/vulnreach/internal/config"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/manifest"
	"golang.org/x/vulnreach/internal/test"
)

const tree = `
-- vendor/golang.org/x/text/go.mod --
module golang.org/x/text
-- vendor/github.com/pkg/errors/errors.go --
package errors
-- node_modules/express/package.json --
{"name": "express", "version": "4.18.2"}
-- node_modules/qs/package.json --
{"name": "qs", "version": "6.11.0"}
-- node_modules/body-parser/node_modules/qs/package.json --
{"name": "qs", "version": "6.11.0"}
-- node_modules/send/node_modules/qs/package.json --
{"name": "qs", "version": "6.5.0"}
-- site-packages/Requests/__init__.py --
-- site-packages/requests-2.31.0.dist-info/METADATA --
-- modcache/github.com/!burnt!sushi/toml@v1.3.2/decode.go --
package toml
-- cache/crates.io/serde/1.0.188/lib.rs --
`

func TestResolve(t *testing.T) {
	root := test.WriteTree(t, tree)
	r := New(FromConfig([]config.Location{
		{Kind: config.LocationVendor, Path: filepath.Join(root, "vendor")},
		{Kind: config.LocationVendor, Path: filepath.Join(root, "node_modules")},
		{Kind: config.LocationVendor, Path: filepath.Join(root, "site-packages")},
		{Kind: config.LocationGoModCache, Path: filepath.Join(root, "modcache")},
		{Kind: config.LocationCache, Path: filepath.Join(root, "cache")},
	}), 4)

	m := &manifest.Manifest{Packages: []*manifest.Entry{
		{Ecosystem: ir.Go, Name: "example.com/app", Main: true, Requires: []string{"golang.org/x/text", "github.com/BurntSushi/toml"}},
		{Ecosystem: ir.Go, Name: "golang.org/x/text", Version: "v0.13.0"},
		{Ecosystem: ir.Go, Name: "github.com/BurntSushi/toml", Version: "v1.3.2"},
		{Ecosystem: ir.Go, Name: "github.com/gorilla/mux", Version: "v1.8.0"},
		{Ecosystem: ir.NPM, Name: "express", Version: "4.18.2"},
		{Ecosystem: ir.NPM, Name: "qs", Version: "6.11.0"},
		{Ecosystem: ir.PyPI, Name: "requests", Version: "2.31.0"},
		{Ecosystem: ir.CratesIO, Name: "serde", Version: "1.0.188"},
	}}
	got, err := r.Resolve(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(m.Packages) {
		t.Fatalf("got %d packages, want %d", len(got), len(m.Packages))
	}

	type summary struct {
		State      State
		SourceRoot string
		Candidates int
	}
	rel := func(p string) string {
		if p == "" {
			return ""
		}
		r, err := filepath.Rel(root, p)
		if err != nil {
			t.Fatal(err)
		}
		return filepath.ToSlash(r)
	}
	var sums []summary
	for _, p := range got {
		sums = append(sums, summary{p.State, rel(p.SourceRoot), len(p.Candidates)})
	}
	want := []summary{
		{Missing, "", 0},
		{Resolved, "vendor/golang.org/x/text", 1},
		{Resolved, "modcache/github.com/!burnt!sushi/toml@v1.3.2", 1},
		{Missing, "", 0},
		{Resolved, "node_modules/express", 1},
		{Ambiguous, "node_modules/body-parser/node_modules/qs", 2},
		{Resolved, "site-packages/Requests", 1},
		{Resolved, "cache/crates.io/serde/1.0.188", 1},
	}
	if diff := cmp.Diff(want, sums); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}

	app := got[0]
	if !app.Main || !app.ScopeKnown {
		t.Errorf("app: Main=%t ScopeKnown=%t, want both true", app.Main, app.ScopeKnown)
	}
	wantDeps := []ir.PackageID{
		{Ecosystem: ir.Go, Name: "golang.org/x/text", Version: "v0.13.0"},
		{Ecosystem: ir.Go, Name: "github.com/BurntSushi/toml", Version: "v1.3.2"},
	}
	if diff := cmp.Diff(wantDeps, app.Deps); diff != "" {
		t.Errorf("deps mismatch (-want, +got):\n%s", diff)
	}
}

func TestResolveLocationOrder(t *testing.T) {
	root := test.WriteTree(t, `
-- a/golang.org/x/text/go.mod --
-- b/golang.org/x/text/go.mod --
`)
	id := ir.PackageID{Ecosystem: ir.Go, Name: "golang.org/x/text", Version: "v0.13.0"}
	m := &manifest.Manifest{Packages: []*manifest.Entry{{Ecosystem: id.Ecosystem, Name: id.Name, Version: id.Version}}}
	r := New([]Location{VendorDir(filepath.Join(root, "b")), VendorDir(filepath.Join(root, "a"))}, 1)
	got, err := r.Resolve(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].State != Resolved {
		t.Errorf("state = %v, want resolved: only the first location with candidates counts", got[0].State)
	}
	if want := filepath.Join(root, "b", "golang.org", "x", "text"); got[0].SourceRoot != want {
		t.Errorf("SourceRoot = %q, want %q", got[0].SourceRoot, want)
	}
	if got[0].ScopeKnown {
		t.Error("ScopeKnown = true for a manifest without edges")
	}
}

type failing struct{}

func (failing) Name() string { return "failing" }
func (failing) Candidates(context.Context, ir.PackageID) ([]string, error) {
	return nil, errors.New("disk on fire")
}

func TestResolveLocationError(t *testing.T) {
	m := &manifest.Manifest{Packages: []*manifest.Entry{{Ecosystem: ir.Go, Name: "a.com/b", Version: "v1.0.0"}}}
	if _, err := New([]Location{failing{}}, 2).Resolve(context.Background(), m); err == nil {
		t.Error("want error from failing location")
	}
}

func TestResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &manifest.Manifest{Packages: []*manifest.Entry{{Ecosystem: ir.Go, Name: "a.com/b", Version: "v1.0.0"}}}
	r := New([]Location{VendorDir(t.TempDir())}, 1)
	if _, err := r.Resolve(ctx, m); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestStateText(t *testing.T) {
	for _, s := range []State{Resolved, Ambiguous, Missing} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got State
		if err := got.UnmarshalText(b); err != nil {
			t.Fatal(err)
		}
		if got != s {
			t.Errorf("%v round-tripped to %v", s, got)
		}
	}
	if _, err := State(7).MarshalText(); err == nil {
		t.Error("want error for invalid state")
	}
}

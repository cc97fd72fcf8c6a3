// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/vulnreach/internal/ir"
)

func TestParseYAML(t *testing.T) {
	m, err := Parse([]byte(`
packages:
  - ecosystem: npm
    name: app
    main: true
    requires: [express, "@types/node@20.1.0"]
  - ecosystem: npm
    name: express
    version: 4.18.2
  - ecosystem: npm
    name: "@types/node"
    version: 20.1.0
  - ecosystem: npm
    name: express
    version: 4.18.2
    requires: [qs]
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Packages) != 3 {
		t.Fatalf("got %d packages, want 3 after merging duplicates", len(m.Packages))
	}
	if diff := cmp.Diff([]string{"qs"}, m.Packages[1].Requires); diff != "" {
		t.Errorf("merged requires mismatch (-want, +got):\n%s", diff)
	}
	if !m.DeclaresEdges() {
		t.Error("DeclaresEdges = false")
	}

	deps, unknown := m.Deps(0)
	wantDeps := []ir.PackageID{
		{Ecosystem: ir.NPM, Name: "express", Version: "4.18.2"},
		{Ecosystem: ir.NPM, Name: "@types/node", Version: "20.1.0"},
	}
	if diff := cmp.Diff(wantDeps, deps); diff != "" {
		t.Errorf("deps mismatch (-want, +got):\n%s", diff)
	}
	if len(unknown) != 0 {
		t.Errorf("unknown = %v", unknown)
	}
	if _, unknown := m.Deps(1); len(unknown) != 1 || unknown[0] != "qs" {
		t.Errorf("unknown = %v, want [qs]", unknown)
	}
}

func TestParseJSON(t *testing.T) {
	m, err := Parse([]byte(`{"packages": [{"ecosystem": "PyPI", "name": "Requests", "version": "2.31.0"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Packages[0].ID(); got != (ir.PackageID{Ecosystem: ir.PyPI, Name: "Requests", Version: "2.31.0"}) {
		t.Errorf("got %v", got)
	}
	if m.DeclaresEdges() {
		t.Error("DeclaresEdges = true for a manifest without requires")
	}
}

func TestParseErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		data string
	}{
		{"missing name", "packages:\n  - ecosystem: npm\n"},
		{"missing ecosystem", "packages:\n  - name: x\n"},
		{"bad go path", "packages:\n  - ecosystem: Go\n    name: \"bad path\"\n"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.data))
			var merr *Error
			if !errors.As(err, &merr) {
				t.Errorf("got %v, want *Error", err)
			}
		})
	}
	if _, err := Parse([]byte("packges: []\n")); err == nil {
		t.Error("want error for unknown field")
	}
}

const goMod = `module example.com/app

go 1.20

require (
	golang.org/x/text v0.3.7
	github.com/tidwall/gjson v1.14.0
)

replace github.com/tidwall/gjson => github.com/tidwall/gjson v1.17.0
`

func TestFromGoMod(t *testing.T) {
	m, err := FromGoMod("go.mod", []byte(goMod))
	if err != nil {
		t.Fatal(err)
	}
	want := []*Entry{
		{Ecosystem: ir.Go, Name: "example.com/app", Main: true, Requires: []string{"golang.org/x/text", "github.com/tidwall/gjson"}},
		{Ecosystem: ir.Go, Name: "golang.org/x/text", Version: "v0.3.7"},
		{Ecosystem: ir.Go, Name: "github.com/tidwall/gjson", Version: "v1.17.0"},
	}
	if diff := cmp.Diff(want, m.Packages); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "go.mod")
	if err := os.WriteFile(path, []byte(goMod), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Packages) != 3 {
		t.Errorf("got %d packages, want 3", len(m.Packages))
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("want error for missing file")
	}
}

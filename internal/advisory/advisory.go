// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package advisory reads vulnerability advisories in OSV format from a
// local directory and converts them to vulnerability records.
package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
	"golang.org/x/vulnreach/internal/derrors"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/log"
	"golang.org/x/vulnreach/internal/osv"
	"golang.org/x/vulnreach/internal/semver"
	"golang.org/x/vulnreach/internal/vulnmap"
)

// indexDirectory holds database index files, which are not entries.
const indexDirectory = "index"

// ReadEntries reads every OSV entry in fsys: every file with a ".json"
// extension outside the index directory, sorted by path.
func ReadEntries(ctx context.Context, fsys fs.FS) (_ []*osv.Entry, err error) {
	defer derrors.Wrap(&err, "ReadEntries")

	var files []string
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == indexDirectory && p != "." {
				return fs.SkipDir
			}
			return nil
		}
		if path.Ext(p) == ".json" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var entries []*osv.Entry
	for _, f := range files {
		e, err := readEntry(fsys, f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	log.Debug(ctx, "read advisories", slog.Int("entries", len(entries)))
	return entries, nil
}

func readEntry(fsys fs.FS, name string) (_ *osv.Entry, err error) {
	defer derrors.Wrap(&err, "readEntry(%q)", name)

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	var e osv.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.ID == "" {
		return nil, fmt.Errorf("entry has no id")
	}
	return &e, nil
}

// Records converts entries to vulnerability records, one per affected
// package of each entry. Entries withdrawn at or before now are skipped.
// The records are sorted by advisory id, then ecosystem and package.
func Records(entries []*osv.Entry, now time.Time) []*vulnmap.Record {
	var out []*vulnmap.Record
	for _, e := range entries {
		if e.Withdrawn != nil && !e.Withdrawn.After(now) {
			continue
		}
		for _, a := range e.Affected {
			out = append(out, record(e.ID, a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AdvisoryID != b.AdvisoryID {
			return a.AdvisoryID < b.AdvisoryID
		}
		if a.Ecosystem != b.Ecosystem {
			return a.Ecosystem < b.Ecosystem
		}
		return a.Package < b.Package
	})
	return out
}

// Load reads the entries of fsys and converts them to records.
func Load(ctx context.Context, fsys fs.FS) ([]*vulnmap.Record, error) {
	entries, err := ReadEntries(ctx, fsys)
	if err != nil {
		return nil, err
	}
	recs := Records(entries, time.Now())
	log.Info(ctx, "loaded vulnerability records", slog.Int("entries", len(entries)), slog.Int("records", len(recs)))
	return recs, nil
}

func record(id string, a osv.Affected) *vulnmap.Record {
	r := &vulnmap.Record{
		AdvisoryID: id,
		Ecosystem:  ir.Ecosystem(a.Package.Ecosystem),
		Package:    a.Package.Name,
	}
	for _, rg := range a.Ranges {
		sr := semver.Range{Type: semver.RangeType(rg.Type)}
		for _, ev := range rg.Events {
			sr.Events = append(sr.Events, semver.RangeEvent{
				Introduced:   ev.Introduced,
				Fixed:        ev.Fixed,
				LastAffected: ev.LastAffected,
			})
		}
		r.Ranges = append(r.Ranges, sr)
	}
	for _, v := range a.Versions {
		r.Ranges = append(r.Ranges, semver.Range{
			Type:   semver.RangeTypeEcosystem,
			Events: []semver.RangeEvent{{Introduced: v}, {LastAffected: v}},
		})
	}

	es := a.EcosystemSpecific
	if es == nil {
		r.WholePackage = true
		return r
	}
	for _, imp := range es.Imports {
		if len(imp.Symbols) == 0 {
			r.WholePackage = true
		}
		for _, s := range imp.Symbols {
			r.Symbols = append(r.Symbols, qualify(imp.Path, s))
		}
	}
	r.Symbols = append(r.Symbols, es.Symbols...)
	sort.Strings(r.Symbols)
	r.Symbols = slices.Compact(r.Symbols)
	if len(r.Symbols) == 0 {
		r.WholePackage = true
	}
	if r.WholePackage {
		r.Symbols = nil
	}
	return r
}

// qualify returns symbol qualified by the import path it belongs to.
func qualify(importPath, symbol string) string {
	if importPath == "" || strings.HasPrefix(symbol, importPath+".") {
		return symbol
	}
	return importPath + "." + symbol
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package analysis decides, for each known vulnerability affecting a
// dependency of an application, whether the vulnerable code can be
// reached from the application's entry points.
//
// Language front-ends describe each package as functions and call sites
// (see the IR types). Analyze links them into one call graph across
// packages and ecosystems, traverses it from the entry points, and
// returns a verdict per advisory and affected package instance, with a
// witness call chain for reachable ones.
//
// Analysis fails toward reachable: packages that could not be located or
// parsed, references that could not be linked and traversals that ran
// out of budget all lead to conservative verdicts of reduced confidence,
// never to an unreachable verdict by omission.
//
// Analyze is a pure function of its inputs. Identical inputs produce
// identical verdicts, in identical order.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/zeebo/xxh3"
	"golang.org/x/exp/slog"
	"golang.org/x/vulnreach/internal/callgraph"
	"golang.org/x/vulnreach/internal/config"
	"golang.org/x/vulnreach/internal/derrors"
	"golang.org/x/vulnreach/internal/ingest"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/link"
	"golang.org/x/vulnreach/internal/log"
	"golang.org/x/vulnreach/internal/manifest"
	"golang.org/x/vulnreach/internal/reach"
	"golang.org/x/vulnreach/internal/report"
	"golang.org/x/vulnreach/internal/resolve"
	"golang.org/x/vulnreach/internal/vulnmap"
)

type (
	// Config configures an analysis.
	Config = config.Config

	// PackageID identifies a package instance.
	PackageID = ir.PackageID

	// Package is a dependency with its resolution outcome.
	Package = resolve.Package

	// Unit is the front-end description of one package.
	Unit = ir.Package

	// Record is a vulnerability affecting some versions of a package.
	Record = vulnmap.Record

	// Verdict is the outcome for one advisory and package instance.
	Verdict = report.Verdict

	// Handler consumes verdicts.
	Handler = report.Handler
)

// ErrUnknownEntryPoint is returned when an entry point names a function
// that no unit declares.
var ErrUnknownEntryPoint = errors.New("unknown entry point")

// EntryPoint names a function analysis starts from.
type EntryPoint struct {
	Package       ir.PackageID
	QualifiedName string
}

func (e EntryPoint) String() string {
	return e.Package.String() + " " + e.QualifiedName
}

// Resolve locates the packages of m in the locations of cfg.
func Resolve(ctx context.Context, cfg *Config, m *manifest.Manifest) ([]*Package, error) {
	if cfg == nil {
		return nil, errors.New("analysis.Resolve: nil config")
	}
	return resolve.New(resolve.FromConfig(cfg.Locations), cfg.Workers).Resolve(ctx, m)
}

// Result is the detailed outcome of an analysis.
type Result struct {
	Verdicts []*Verdict

	// Graph summarizes the call graph.
	Graph callgraph.Stats

	// Links counts call sites by how they were linked.
	Links link.Stats

	// Reachable is the number of call graph nodes reached.
	Reachable int

	// Degraded reports that the traversal ran out of budget.
	Degraded bool
	Reason   string

	// GraphFingerprint and VerdictFingerprint identify the call graph
	// and the verdicts. They are equal across runs on equal inputs.
	GraphFingerprint   uint64
	VerdictFingerprint uint64

	cfg *Config
}

// Analyze returns the verdicts for records over the packages pkgs, whose
// code is described by units, starting from entrypoints and from every
// function a front-end marked as an entry point.
//
// Every package in units must be in pkgs; packages without a unit are
// approximated conservatively. Analyze returns an error only for
// malformed input.
func Analyze(ctx context.Context, cfg *Config, entrypoints []EntryPoint, pkgs []*Package, units []*Unit, records []*Record) ([]*Verdict, error) {
	r, err := AnalyzeDetailed(ctx, cfg, entrypoints, pkgs, units, records)
	if err != nil {
		return nil, err
	}
	return r.Verdicts, nil
}

// AnalyzeDetailed is like Analyze but also returns statistics and
// fingerprints of the analysis.
func AnalyzeDetailed(ctx context.Context, cfg *Config, entrypoints []EntryPoint, pkgs []*Package, units []*Unit, records []*Record) (_ *Result, err error) {
	defer derrors.Wrap(&err, "Analyze")

	if cfg == nil {
		return nil, errors.New("nil config")
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ingested, err := ingest.Ingest(ctx, c.Workers, pkgs, units)
	if err != nil {
		return nil, err
	}
	arena := callgraph.NewArena(ingested, vulnmap.MissingSymbols(pkgs, records))
	b := callgraph.NewBuilder(arena)
	links := link.Link(ctx, arena, b, &c)
	g := b.Build(ctx)

	entries, err := entryNodes(g, pkgs, entrypoints)
	if err != nil {
		return nil, err
	}
	e := reach.New(c.Budget)
	if err := e.Load(g); err != nil {
		return nil, err
	}
	rr, err := e.Traverse(ctx, entries)
	if err != nil {
		return nil, err
	}
	verdicts := vulnmap.Map(ctx, g, rr, pkgs, records)

	vfp, err := fingerprint(verdicts)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Verdicts:           verdicts,
		Graph:              g.Stats(),
		Links:              links,
		Reachable:          rr.Count(),
		Degraded:           rr.Degraded,
		Reason:             rr.Reason,
		GraphFingerprint:   g.Fingerprint(),
		VerdictFingerprint: vfp,
		cfg:                &c,
	}
	log.Info(ctx, "analysis complete",
		slog.Int("verdicts", len(verdicts)),
		slog.Int("entries", len(entries)),
		slog.String("graph_fingerprint", strconv.FormatUint(res.GraphFingerprint, 16)))
	return res, nil
}

// entryNodes returns the nodes analysis starts from: the named entry
// points, every node a front-end flagged, and the package node of every
// main package that was not completely analyzed.
func entryNodes(g *callgraph.Graph, pkgs []*Package, entrypoints []EntryPoint) ([]callgraph.NodeID, error) {
	var out []callgraph.NodeID
	for _, ep := range entrypoints {
		id, ok := g.Lookup(ep.Package, ep.QualifiedName)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEntryPoint, ep)
		}
		out = append(out, id)
	}
	for _, n := range g.Nodes() {
		if n.Entrypoint {
			out = append(out, n.ID)
		}
	}
	for _, p := range pkgs {
		if !p.Main {
			continue
		}
		if id, ok := g.Lookup(p.ID, callgraph.PackageNodeName); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func fingerprint(verdicts []*Verdict) (uint64, error) {
	data, err := json.Marshal(verdicts)
	if err != nil {
		return 0, err
	}
	return xxh3.Hash(data), nil
}

// Report sends a configuration message followed by the verdicts to h.
func (r *Result) Report(h Handler) error {
	cfg := &report.Config{
		ProtocolVersion:  report.ProtocolVersion,
		EngineName:       report.EngineName,
		Packages:         r.Graph.Packages,
		GraphFingerprint: strconv.FormatUint(r.GraphFingerprint, 16),
	}
	if r.cfg != nil {
		cfg.Workers = r.cfg.Workers
		cfg.MaxNodes = r.cfg.Budget.MaxNodes
		cfg.OverLink = r.cfg.Link.OverLink
		if r.cfg.Budget.MaxDuration > 0 {
			cfg.MaxDuration = r.cfg.Budget.MaxDuration.String()
		}
	}
	return report.Emit(h, cfg, r.Verdicts)
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vulnmap

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/vulnreach/internal/callgraph"
	"golang.org/x/vulnreach/internal/config"
	"golang.org/x/vulnreach/internal/ingest"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/reach"
	"golang.org/x/vulnreach/internal/report"
	"golang.org/x/vulnreach/internal/resolve"
	"golang.org/x/vulnreach/internal/semver"
)

var (
	app  = ir.PackageID{Ecosystem: ir.Go, Name: "example.com/app"}
	lib  = ir.PackageID{Ecosystem: ir.Go, Name: "example.com/lib", Version: "v1.2.0"}
	gone = ir.PackageID{Ecosystem: ir.Go, Name: "example.com/gone", Version: "v0.1.0"}
)

func fn(lid ir.LocalID, pkg ir.PackageID, name, recv string) *ir.Function {
	q := pkg.Name + "." + name
	if recv != "" {
		q = pkg.Name + "." + recv + "." + name
	}
	return &ir.Function{ID: lid, QualifiedName: q, Name: name, Receiver: recv, Exported: name[0] >= 'A' && name[0] <= 'Z', File: "x.go", Lines: ir.LineRange{Start: int(lid) + 1}}
}

type fixture struct {
	g    *callgraph.Graph
	pkgs []*resolve.Package
}

// build creates a workspace where app.main calls lib.A, lib.A calls
// lib.B, and lib.B calls lib.T.Vulnerable. lib.Safe is never called.
func build(t *testing.T, records []*Record, extra func(*ir.Package)) *fixture {
	t.Helper()
	pkgs := []*resolve.Package{
		{ID: app, State: resolve.Resolved, ScopeKnown: true, Deps: []ir.PackageID{lib, gone}},
		{ID: lib, State: resolve.Resolved, ScopeKnown: true},
		{ID: gone, State: resolve.Missing, ScopeKnown: true},
	}
	appIR := &ir.Package{ID: app, Functions: []*ir.Function{fn(0, app, "main", "")}}
	libIR := &ir.Package{ID: lib, Functions: []*ir.Function{
		fn(0, lib, "A", ""), fn(1, lib, "B", ""), fn(2, lib, "Vulnerable", "T"), fn(3, lib, "Safe", ""),
	}, Calls: []*ir.CallSite{
		{Caller: 0, Target: ir.Local(1)},
		{Caller: 1, Target: ir.Local(2)},
	}}
	if extra != nil {
		extra(appIR)
	}
	ctx := context.Background()
	units, err := ingest.Ingest(ctx, 2, pkgs, []*ir.Package{appIR, libIR})
	if err != nil {
		t.Fatal(err)
	}
	a := callgraph.NewArena(units, MissingSymbols(pkgs, records))
	b := callgraph.NewBuilder(a)
	main, _ := a.Lookup(app, "example.com/app.main")
	libA, _ := a.Lookup(lib, "example.com/lib.A")
	b.AddEdge(main, libA, callgraph.Exact)
	for _, u := range units {
		for _, c := range u.IR.Calls {
			from, _ := a.NodeOf(u.Package.ID, c.Caller)
			switch c.Target.Kind {
			case ir.TargetLocal:
				to, _ := a.NodeOf(u.Package.ID, c.Target.Local)
				b.AddEdge(from, to, callgraph.Exact)
			case ir.TargetUnresolved:
				b.Flag(u.Package.ID)
				if p := c.Target.Ref.Package; p == gone.Name {
					b.AddImportSite(from, gone)
				}
			}
		}
	}
	return &fixture{g: b.Build(ctx), pkgs: pkgs}
}

func (f *fixture) run(t *testing.T, budget config.Budget, records []*Record) []*report.Verdict {
	t.Helper()
	e := reach.New(budget)
	if err := e.Load(f.g); err != nil {
		t.Fatal(err)
	}
	main, _ := f.g.Lookup(app, "example.com/app.main")
	r, err := e.Traverse(context.Background(), []callgraph.NodeID{main})
	if err != nil {
		t.Fatal(err)
	}
	return Map(context.Background(), f.g, r, f.pkgs, records)
}

func functions(v *report.Verdict) []string {
	var out []string
	for _, fr := range v.Trace {
		out = append(out, fr.Function)
	}
	return out
}

func TestReachableWitness(t *testing.T) {
	recs := []*Record{{AdvisoryID: "GO-1", Ecosystem: ir.Go, Package: "example.com/lib", Symbols: []string{"T.Vulnerable"}}}
	vs := build(t, recs, nil).run(t, config.Budget{}, recs)
	if len(vs) != 1 {
		t.Fatalf("got %d verdicts, want 1", len(vs))
	}
	v := vs[0]
	if !v.Reachable || v.Confidence != report.High {
		t.Errorf("Reachable = %t, Confidence = %v (%s)", v.Reachable, v.Confidence, v.Reason)
	}
	want := []string{"example.com/app.main", "example.com/lib.A", "example.com/lib.B", "example.com/lib.T.Vulnerable"}
	if diff := cmp.Diff(want, functions(v)); diff != "" {
		t.Errorf("witness mismatch (-want, +got):\n%s", diff)
	}
	if v.Symbol != "example.com/lib.T.Vulnerable" || len(v.Witness) != 4 {
		t.Errorf("Symbol = %q, Witness = %v", v.Symbol, v.Witness)
	}
	if v.Trace[0].Edge != "" || v.Trace[1].Edge != "exact" || v.Trace[3].Position.Line != 3 {
		t.Errorf("unexpected frames: %v", v.Trace)
	}
}

func TestUnreachable(t *testing.T) {
	recs := []*Record{{AdvisoryID: "GO-2", Ecosystem: ir.Go, Package: "example.com/lib", Symbols: []string{"Safe"}}}
	vs := build(t, recs, nil).run(t, config.Budget{}, recs)
	want := []*report.Verdict{{Advisory: "GO-2", Package: lib, Confidence: report.High}}
	if diff := cmp.Diff(want, vs); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
}

func TestVersionNotAffected(t *testing.T) {
	recs := []*Record{{
		AdvisoryID: "GO-3", Ecosystem: ir.Go, Package: "example.com/lib", Symbols: []string{"A"},
		Ranges: []semver.Range{{Type: semver.RangeTypeSemver, Events: []semver.RangeEvent{{Introduced: "0"}, {Fixed: "1.1.0"}}}},
	}}
	if vs := build(t, recs, nil).run(t, config.Budget{}, recs); len(vs) != 0 {
		t.Errorf("got %d verdicts for a fixed version", len(vs))
	}
}

func TestBudgetDegraded(t *testing.T) {
	recs := []*Record{{AdvisoryID: "GO-4", Ecosystem: ir.Go, Package: "example.com/lib", Symbols: []string{"T.Vulnerable"}}}
	vs := build(t, recs, nil).run(t, config.Budget{MaxNodes: 2}, recs)
	v := vs[0]
	if !v.Reachable || v.Confidence != report.Low || v.Witness != nil || v.Reason == "" {
		t.Errorf("got %+v, want reachable with low confidence and no witness", v)
	}
}

func TestMissingPackage(t *testing.T) {
	recs := []*Record{{AdvisoryID: "GO-5", Ecosystem: ir.Go, Package: "example.com/gone", Symbols: []string{"Decode"}}}

	// Nothing refers to the missing package: reachable only by default.
	vs := build(t, recs, nil).run(t, config.Budget{}, recs)
	if v := vs[0]; !v.Reachable || v.Confidence != report.Low || v.Witness != nil {
		t.Errorf("unreferenced missing package: %+v", v)
	}

	// A call into it reaches its vulnerable symbol through the fallback.
	refer := func(p *ir.Package) {
		p.Calls = append(p.Calls, &ir.CallSite{Caller: 0, Target: ir.Unresolved(ir.SymbolRef{Package: gone.Name, Name: "Open", Arity: 1})})
	}
	vs = build(t, recs, refer).run(t, config.Budget{}, recs)
	v := vs[0]
	if !v.Reachable || v.Confidence != report.Degraded {
		t.Fatalf("referenced missing package: %+v", v)
	}
	if diff := cmp.Diff([]string{"example.com/app.main", "Decode"}, functions(v)); diff != "" {
		t.Errorf("witness mismatch (-want, +got):\n%s", diff)
	}
	if !v.Trace[1].Synthetic || v.Trace[1].Edge != "fallback" {
		t.Errorf("last frame = %+v", v.Trace[1])
	}
}

func TestSymbolNotFound(t *testing.T) {
	recs := []*Record{{AdvisoryID: "GO-6", Ecosystem: ir.Go, Package: "example.com/lib", Symbols: []string{"Removed"}}}
	vs := build(t, recs, nil).run(t, config.Budget{}, recs)
	v := vs[0]
	if !v.Reachable || v.Confidence != report.Degraded || v.Symbol != "example.com/lib.A" {
		t.Errorf("got %+v, want degraded whole-package verdict ending in lib.A", v)
	}
}

func TestWholePackageAndOrder(t *testing.T) {
	recs := []*Record{
		{AdvisoryID: "GO-9", Ecosystem: ir.Go, Package: "example.com/lib"},
		{AdvisoryID: "GO-7", Ecosystem: ir.Go, Package: "example.com/lib", Symbols: []string{"Safe"}},
		{AdvisoryID: "GO-7", Ecosystem: ir.Go, Package: "example.com/lib", Symbols: []string{"B"}},
		{AdvisoryID: "GO-8", Ecosystem: ir.NPM, Package: "example.com/lib"},
	}
	vs := build(t, recs, nil).run(t, config.Budget{}, recs)
	type short struct {
		Advisory  string
		Reachable bool
		Symbol    string
	}
	var got []short
	for _, v := range vs {
		got = append(got, short{v.Advisory, v.Reachable, v.Symbol})
	}
	want := []short{
		{"GO-7", true, "example.com/lib.B"},
		{"GO-9", true, "example.com/lib.A"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/vulnreach/internal/config"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/report"
	"golang.org/x/vulnreach/internal/resolve"
)

func goID(name string) PackageID {
	return PackageID{Ecosystem: ir.Go, Name: name, Version: "v1.0.0"}
}

// workspace assembles packages and units for a test.
type workspace struct {
	pkgs  []*Package
	units []*Unit
}

// add adds a package. Missing packages get no unit.
func (w *workspace) add(id PackageID, state resolve.State, deps ...PackageID) *Unit {
	w.pkgs = append(w.pkgs, &Package{ID: id, State: state, ScopeKnown: true, Deps: deps, Main: len(w.pkgs) == 0})
	u := &Unit{ID: id}
	if state != resolve.Missing {
		w.units = append(w.units, u)
	}
	return u
}

func fn(u *Unit, name string) ir.LocalID {
	id := ir.LocalID(len(u.Functions))
	u.Functions = append(u.Functions, &ir.Function{
		ID:            id,
		QualifiedName: u.ID.Name + "." + name,
		Name:          name,
		Arity:         ir.UnknownArity,
		Exported:      name[0] >= 'A' && name[0] <= 'Z',
		File:          "f.go",
		Lines:         ir.LineRange{Start: 10 * (int(id) + 1), End: 10*(int(id)+1) + 5},
	})
	return id
}

func local(u *Unit, from, to ir.LocalID) {
	u.Calls = append(u.Calls, &ir.CallSite{Caller: from, Target: ir.Local(to)})
}

func ref(u *Unit, from ir.LocalID, pkg PackageID, name string) {
	u.Calls = append(u.Calls, &ir.CallSite{Caller: from, Target: ir.Unresolved(ir.SymbolRef{
		Package: pkg.Name, Name: pkg.Name + "." + name, Arity: ir.UnknownArity,
	})})
}

func entry(u *Unit, name string) EntryPoint {
	return EntryPoint{Package: u.ID, QualifiedName: u.ID.Name + "." + name}
}

func record(id string, pkg PackageID, symbols ...string) *Record {
	return &Record{AdvisoryID: id, Ecosystem: pkg.Ecosystem, Package: pkg.Name, Symbols: symbols}
}

func analyze(t *testing.T, cfg *Config, eps []EntryPoint, w *workspace, recs ...*Record) []*Verdict {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	vs, err := Analyze(context.Background(), cfg, eps, w.pkgs, w.units, recs)
	if err != nil {
		t.Fatal(err)
	}
	return vs
}

func trace(v *Verdict) []string {
	var out []string
	for _, f := range v.Trace {
		out = append(out, f.Function)
	}
	return out
}

var (
	appID  = goID("example.com/app")
	libID  = goID("example.com/lib")
	vulnID = goID("example.com/vuln")
)

// chain builds app.main -> lib.A -> lib.B -> vuln.vulnerableFn, with
// vuln.Unused never called.
func chain() (*workspace, *Unit, *Unit, *Unit) {
	w := &workspace{}
	app := w.add(appID, resolve.Resolved, libID)
	lib := w.add(libID, resolve.Resolved, vulnID)
	vuln := w.add(vulnID, resolve.Resolved)

	main := fn(app, "main")
	ref(app, main, libID, "A")
	a, b := fn(lib, "A"), fn(lib, "B")
	local(lib, a, b)
	vf := fn(vuln, "vulnerableFn")
	fn(vuln, "Unused")
	vuln.Calls = append(vuln.Calls, &ir.CallSite{Caller: vf, Target: ir.Local(vf)})
	lib.Calls = append(lib.Calls, &ir.CallSite{Caller: b, Target: ir.Unresolved(ir.SymbolRef{Name: "vulnerableFn", Arity: ir.UnknownArity})})
	return w, app, lib, vuln
}

func TestPositiveWitness(t *testing.T) {
	w, app, _, _ := chain()
	vs := analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-1", vulnID, "vulnerableFn"))
	if len(vs) != 1 {
		t.Fatalf("got %d verdicts, want 1", len(vs))
	}
	v := vs[0]
	if !v.Reachable || v.Confidence != report.High {
		t.Errorf("Reachable = %t, Confidence = %v (%s), want reachable with high confidence", v.Reachable, v.Confidence, v.Reason)
	}
	want := []string{
		"example.com/app.main",
		"example.com/lib.A",
		"example.com/lib.B",
		"example.com/vuln.vulnerableFn",
	}
	if diff := cmp.Diff(want, trace(v)); diff != "" {
		t.Errorf("witness mismatch (-want, +got):\n%s", diff)
	}
}

func TestNegative(t *testing.T) {
	w, app, _, _ := chain()
	vs := analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-2", vulnID, "Unused"))
	want := []*Verdict{{Advisory: "VULN-2", Package: vulnID, Confidence: report.High}}
	if diff := cmp.Diff(want, vs); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
}

func TestEntrypointFlag(t *testing.T) {
	w, app, _, _ := chain()
	app.Functions[0].Entrypoint = true
	vs := analyze(t, nil, nil, w, record("VULN-1", vulnID, "vulnerableFn"))
	if !vs[0].Reachable {
		t.Error("flagged entry point not used")
	}
	// Without any entry point nothing is reachable.
	app.Functions[0].Entrypoint = false
	if vs := analyze(t, nil, nil, w, record("VULN-1", vulnID, "vulnerableFn")); vs[0].Reachable {
		t.Error("reachable without entry points")
	}
}

func TestCycleSafety(t *testing.T) {
	w := &workspace{}
	app := w.add(appID, resolve.Resolved, libID)
	lib := w.add(libID, resolve.Resolved, appID)
	main, loop := fn(app, "main"), fn(app, "Loop")
	local(app, main, loop)
	local(app, loop, loop)
	ref(app, loop, libID, "Ping")
	ping, pong, sink := fn(lib, "Ping"), fn(lib, "Pong"), fn(lib, "Sink")
	local(lib, ping, pong)
	local(lib, pong, ping)
	ref(lib, pong, appID, "Loop")
	local(lib, pong, sink)

	vs := analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-3", libID, "Sink"))
	want := []string{"example.com/app.main", "example.com/app.Loop", "example.com/lib.Ping", "example.com/lib.Pong", "example.com/lib.Sink"}
	if diff := cmp.Diff(want, trace(vs[0])); diff != "" {
		t.Errorf("witness mismatch (-want, +got):\n%s", diff)
	}
}

func TestAmbiguousOverApproximation(t *testing.T) {
	w := &workspace{}
	app := w.add(appID, resolve.Resolved, libID)
	lib := w.add(libID, resolve.Ambiguous)
	main := fn(app, "main")
	ref(app, main, libID, "Safe")
	fn(lib, "Safe")
	fn(lib, "Hidden")

	vs := analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-4", libID, "Hidden"))
	v := vs[0]
	if !v.Reachable || v.Confidence != report.Degraded {
		t.Fatalf("got %+v, want reachable with degraded confidence", v)
	}
	if diff := cmp.Diff([]string{"example.com/app.main", "example.com/lib.Hidden"}, trace(v)); diff != "" {
		t.Errorf("witness mismatch (-want, +got):\n%s", diff)
	}
	if v.Trace[1].Edge != "fallback" {
		t.Errorf("edge = %q, want fallback", v.Trace[1].Edge)
	}

	// The same code with a cleanly resolved package is not reachable.
	w.pkgs[1].State = resolve.Resolved
	if vs := analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-4", libID, "Hidden")); vs[0].Reachable {
		t.Error("Hidden reachable in a resolved package")
	}
}

func TestUnparseableFile(t *testing.T) {
	// lib has ten files; file 9 failed to parse. The only call to the
	// vulnerable function was in that file, behind lib.Broken.
	w := &workspace{}
	app := w.add(appID, resolve.Resolved, libID)
	lib := w.add(libID, resolve.Resolved, vulnID)
	vuln := w.add(vulnID, resolve.Resolved)
	main := fn(app, "main")
	ref(app, main, libID, "Broken")
	for i := 0; i < 10; i++ {
		lib.Files = append(lib.Files, fmt.Sprintf("file%d.go", i))
		if i != 9 {
			fn(lib, fmt.Sprintf("F%d", i))
		}
	}
	lib.MarkFileError("file9.go", errors.New("unexpected EOF"))
	fn(vuln, "Decode")

	vs := analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-5", vulnID, "Decode"))
	v := vs[0]
	if !v.Reachable || v.Confidence != report.Degraded {
		t.Fatalf("got %+v, want reachable with degraded confidence", v)
	}
	if got := trace(v); got[len(got)-1] != "example.com/vuln.Decode" {
		t.Errorf("witness = %v", got)
	}

	// Without the parse failure, the unknown lib.Broken still falls back
	// to lib's exported API, but nothing there reaches vuln.
	lib.FileErrors, lib.HasUnresolvedCalls = nil, false
	vs = analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-5", vulnID, "Decode"))
	if vs[0].Reachable {
		t.Errorf("got %+v, want unreachable", vs[0])
	}
}

func TestUnparseableEntryPackage(t *testing.T) {
	// app is not marked main, but its entry point lives next to a file
	// that failed to parse; the call to vuln.Bad may be in that file.
	w := &workspace{}
	app := w.add(appID, resolve.Resolved, vulnID)
	vuln := w.add(vulnID, resolve.Resolved)
	w.pkgs[0].Main = false
	fn(app, "main")
	app.Files = []string{"main.go", "broken.go"}
	app.MarkFileError("broken.go", errors.New("expected declaration"))
	fn(vuln, "Bad")

	vs := analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-8", vulnID, "Bad"))
	v := vs[0]
	if !v.Reachable || v.Confidence != report.Degraded {
		t.Fatalf("got %+v, want reachable with degraded confidence", v)
	}
	want := []string{"example.com/app.main", "<package>", "example.com/vuln.Bad"}
	if diff := cmp.Diff(want, trace(v)); diff != "" {
		t.Errorf("witness mismatch (-want, +got):\n%s", diff)
	}
	if !v.Trace[1].Synthetic || v.Trace[1].Edge != "fallback" {
		t.Errorf("frame 1 = %+v, want synthetic frame reached by a fallback edge", v.Trace[1])
	}

	app.FileErrors, app.HasUnresolvedCalls = nil, false
	vs = analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-8", vulnID, "Bad"))
	if vs[0].Reachable || vs[0].Confidence != report.High {
		t.Errorf("got %+v, want unreachable with high confidence", vs[0])
	}
}

func TestUndeclaredDependency(t *testing.T) {
	otherID := goID("example.com/other")
	w := &workspace{}
	app := w.add(appID, resolve.Resolved, libID)
	w.add(libID, resolve.Resolved)
	other := w.add(otherID, resolve.Resolved)
	main := fn(app, "main")
	ref(app, main, otherID, "X")
	fn(other, "X")

	vs := analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-9", otherID, "X"))
	v := vs[0]
	if !v.Reachable || v.Confidence != report.Degraded {
		t.Fatalf("got %+v, want reachable with degraded confidence", v)
	}
	if diff := cmp.Diff([]string{"example.com/app.main", "example.com/other.X"}, trace(v)); diff != "" {
		t.Errorf("witness mismatch (-want, +got):\n%s", diff)
	}
	if v.Trace[1].Edge != "fallback" {
		t.Errorf("edge = %q, want fallback", v.Trace[1].Edge)
	}
}

func TestMissingPackage(t *testing.T) {
	w := &workspace{}
	app := w.add(appID, resolve.Resolved, vulnID)
	w.add(vulnID, resolve.Missing)
	main := fn(app, "main")
	ref(app, main, vulnID, "Open")

	vs := analyze(t, nil, []EntryPoint{entry(app, "main")}, w, record("VULN-6", vulnID, "Decode"))
	v := vs[0]
	if !v.Reachable || v.Confidence != report.Degraded {
		t.Fatalf("got %+v, want reachable with degraded confidence", v)
	}
	// Vulnerable symbols of an unanalyzed package are synthesized from
	// the advisory.
	if diff := cmp.Diff([]string{"example.com/app.main", "Decode"}, trace(v)); diff != "" {
		t.Errorf("witness mismatch (-want, +got):\n%s", diff)
	}
}

func TestBudgetExceeded(t *testing.T) {
	w, app, _, _ := chain()
	cfg := config.Default()
	cfg.Budget.MaxNodes = 2
	r, err := AnalyzeDetailed(context.Background(), cfg, []EntryPoint{entry(app, "main")}, w.pkgs, w.units,
		[]*Record{record("VULN-1", vulnID, "vulnerableFn"), record("VULN-2", vulnID, "Unused")})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Degraded {
		t.Fatal("traversal not degraded")
	}
	for _, v := range r.Verdicts {
		if !v.Reachable || v.Confidence != report.Low {
			t.Errorf("%s: got %+v, want reachable with low confidence", v.Advisory, v)
		}
	}
}

func TestMonotonicity(t *testing.T) {
	w := randomWorkspace(rand.New(rand.NewSource(1)), 40, 12)
	recs := randomRecords(w, 60)
	var all []EntryPoint
	for _, u := range w.units {
		all = append(all, EntryPoint{Package: u.ID, QualifiedName: u.Functions[0].QualifiedName})
	}
	reachable := func(eps []EntryPoint) map[string]bool {
		m := make(map[string]bool)
		for _, v := range analyze(t, nil, eps, w, recs...) {
			if v.Reachable {
				m[v.Advisory+" "+v.Package.String()] = true
			}
		}
		return m
	}
	prev := map[string]bool{}
	for n := 1; n <= len(all); n += 7 {
		cur := reachable(all[:n])
		for k := range prev {
			if !cur[k] {
				t.Errorf("%s reachable from %d entry points but not from %d", k, n-7, n)
			}
		}
		prev = cur
	}
}

func TestIdempotence(t *testing.T) {
	run := func(seed int64) ([]byte, *Result) {
		w := randomWorkspace(rand.New(rand.NewSource(7)), 60, 10)
		recs := randomRecords(w, 40)
		eps := []EntryPoint{entry(w.units[0], "F0"), entry(w.units[5], "F0")}
		// Present the same inputs in a different order.
		r := rand.New(rand.NewSource(seed))
		r.Shuffle(len(w.pkgs), func(i, j int) { w.pkgs[i], w.pkgs[j] = w.pkgs[j], w.pkgs[i] })
		r.Shuffle(len(w.units), func(i, j int) { w.units[i], w.units[j] = w.units[j], w.units[i] })
		r.Shuffle(len(recs), func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })
		r.Shuffle(len(eps), func(i, j int) { eps[i], eps[j] = eps[j], eps[i] })

		cfg := config.Default()
		cfg.Workers = 4
		res, err := AnalyzeDetailed(context.Background(), cfg, eps, w.pkgs, w.units, recs)
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := res.Report(report.NewJSONHandler(&buf)); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes(), res
	}
	out1, r1 := run(1)
	for _, seed := range []int64{1, 2, 3} {
		out, r := run(seed)
		if !bytes.Equal(out1, out) {
			t.Errorf("seed %d: JSON output differs", seed)
		}
		if r1.GraphFingerprint != r.GraphFingerprint {
			t.Errorf("seed %d: graph fingerprint %x, want %x", seed, r.GraphFingerprint, r1.GraphFingerprint)
		}
		if r1.VerdictFingerprint != r.VerdictFingerprint {
			t.Errorf("seed %d: verdict fingerprint %x, want %x", seed, r.VerdictFingerprint, r1.VerdictFingerprint)
		}
	}
}

func TestScale(t *testing.T) {
	const npkg, nfn = 420, 15
	w := &workspace{}
	ids := make([]PackageID, npkg)
	for i := range ids {
		ids[i] = goID(fmt.Sprintf("example.com/p%03d", i))
	}
	for i, id := range ids {
		next := []PackageID{ids[(i+1)%npkg], ids[(i+7)%npkg]}
		u := w.add(id, resolve.Resolved, next...)
		for f := 0; f < nfn; f++ {
			fn(u, fmt.Sprintf("F%02d", f))
		}
		for f := 0; f < nfn; f++ {
			local(u, ir.LocalID(f), ir.LocalID((f+1)%nfn))
		}
		ref(u, 3, next[0], "F00")
		ref(u, 9, next[1], "F05")
	}
	iso := w.add(goID("example.com/isolated"), resolve.Resolved)
	fn(iso, "Bad")
	recs := []*Record{
		record("VULN-A", ids[210], "F07"),
		record("VULN-B", iso.ID, "Bad"),
		record("VULN-C", ids[npkg-1], "F14"),
	}
	eps := []EntryPoint{entry(w.units[0], "F00")}

	cfg := config.Default()
	res, err := AnalyzeDetailed(context.Background(), cfg, eps, w.pkgs, w.units, recs)
	if err != nil {
		t.Fatal(err)
	}
	if res.Graph.Nodes < 6000 || res.Graph.Packages < 400 {
		t.Fatalf("graph too small: %+v", res.Graph)
	}
	if res.Reachable != npkg*nfn {
		t.Errorf("reachable = %d, want %d", res.Reachable, npkg*nfn)
	}
	type summary struct {
		Advisory   string
		Reachable  bool
		Confidence report.Confidence
	}
	var got []summary
	for _, v := range res.Verdicts {
		got = append(got, summary{v.Advisory, v.Reachable, v.Confidence})
		if v.Reachable && v.Trace[0].Function != "example.com/p000.F00" {
			t.Errorf("%s: witness starts at %s", v.Advisory, v.Trace[0].Function)
		}
	}
	want := []summary{
		{"VULN-A", true, report.High},
		{"VULN-B", false, report.High},
		{"VULN-C", true, report.High},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}

	again, err := AnalyzeDetailed(context.Background(), cfg, eps, w.pkgs, w.units, recs)
	if err != nil {
		t.Fatal(err)
	}
	if again.GraphFingerprint != res.GraphFingerprint || again.VerdictFingerprint != res.VerdictFingerprint {
		t.Error("fingerprints differ between runs")
	}
}

func TestInputErrors(t *testing.T) {
	w, app, _, _ := chain()
	ctx := context.Background()
	if _, err := Analyze(ctx, nil, nil, w.pkgs, w.units, nil); err == nil {
		t.Error("nil config: want error")
	}
	_, err := Analyze(ctx, config.Default(), []EntryPoint{entry(app, "nope")}, w.pkgs, w.units, nil)
	if !errors.Is(err, ErrUnknownEntryPoint) {
		t.Errorf("got %v, want ErrUnknownEntryPoint", err)
	}
	dup := append([]*Unit{}, w.units...)
	dup = append(dup, &Unit{ID: appID})
	if _, err := Analyze(ctx, config.Default(), nil, w.pkgs, dup, nil); err == nil {
		t.Error("duplicate unit: want error")
	}
	bad := config.Default()
	bad.Budget.MaxNodes = -1
	if _, err := Analyze(ctx, bad, nil, w.pkgs, w.units, nil); err == nil {
		t.Error("invalid config: want error")
	}
}

// randomWorkspace returns n packages of up to m functions each, calling
// each other at random. About one package in ten is ambiguous and some
// references name functions that do not exist.
func randomWorkspace(r *rand.Rand, n, m int) *workspace {
	w := &workspace{}
	ids := make([]PackageID, n)
	for i := range ids {
		ids[i] = goID(fmt.Sprintf("example.com/r%02d", i))
	}
	for _, id := range ids {
		var deps []PackageID
		for j := 0; j < 3; j++ {
			deps = append(deps, ids[r.Intn(n)])
		}
		state := resolve.Resolved
		if r.Intn(10) == 0 {
			state = resolve.Ambiguous
		}
		u := w.add(id, state, deps...)
		k := 1 + r.Intn(m)
		for f := 0; f < k; f++ {
			name := fmt.Sprintf("F%d", f)
			if f%4 == 3 {
				name = fmt.Sprintf("f%d", f)
			}
			fn(u, name)
		}
		for c := 0; c < 2*k; c++ {
			from := ir.LocalID(r.Intn(k))
			if r.Intn(2) == 0 {
				local(u, from, ir.LocalID(r.Intn(k)))
			} else {
				ref(u, from, deps[r.Intn(len(deps))], fmt.Sprintf("F%d", r.Intn(m)))
			}
		}
	}
	return w
}

// randomRecords returns n records, each naming one function of a random
// package of w.
func randomRecords(w *workspace, n int) []*Record {
	r := rand.New(rand.NewSource(int64(n)))
	var recs []*Record
	for i := 0; i < n; i++ {
		u := w.units[r.Intn(len(w.units))]
		f := u.Functions[r.Intn(len(u.Functions))]
		recs = append(recs, record(fmt.Sprintf("VULN-%03d", i), u.ID, f.Name))
	}
	return recs
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vulnmap maps vulnerability records onto the call graph and
// turns the reachability result into one verdict per advisory and
// affected package instance.
package vulnmap

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/slog"
	"golang.org/x/vulnreach/internal/callgraph"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/log"
	"golang.org/x/vulnreach/internal/reach"
	"golang.org/x/vulnreach/internal/report"
	"golang.org/x/vulnreach/internal/resolve"
	"golang.org/x/vulnreach/internal/semver"
)

// Record is a vulnerability affecting a range of versions of a package.
type Record struct {
	AdvisoryID string       `json:"advisory_id"`
	Ecosystem  ir.Ecosystem `json:"ecosystem"`
	Package    string       `json:"package"`

	// Ranges lists the affected version ranges. No ranges means every
	// version is affected.
	Ranges []semver.Range `json:"ranges,omitempty"`

	// Symbols lists the vulnerable functions. Each is either a qualified
	// name or a name relative to the package, such as "Parse" or
	// "T.Method".
	Symbols []string `json:"symbols,omitempty"`

	// WholePackage marks every exported function of the package as
	// vulnerable. It is implied when Symbols is empty.
	WholePackage bool `json:"whole_package,omitempty"`
}

func (r *Record) whole() bool {
	return r.WholePackage || len(r.Symbols) == 0
}

// Affects reports whether r applies to the package instance id.
func (r *Record) Affects(id ir.PackageID) bool {
	return id.Ecosystem == r.Ecosystem &&
		ir.NormalizeName(id.Ecosystem, id.Name) == ir.NormalizeName(r.Ecosystem, r.Package) &&
		semver.Affects(r.Ranges, id.Version)
}

// MissingSymbols returns, for each missing package that a record
// affects, the vulnerable symbols that must exist as synthetic nodes so
// that the fallback for the package can reach them.
func MissingSymbols(pkgs []*resolve.Package, records []*Record) map[ir.PackageID][]string {
	out := make(map[ir.PackageID][]string)
	for _, p := range pkgs {
		if p.State != resolve.Missing {
			continue
		}
		for _, r := range records {
			if r.Affects(p.ID) {
				out[p.ID] = append(out[p.ID], r.Symbols...)
			}
		}
		sort.Strings(out[p.ID])
	}
	return out
}

// matches reports whether node n is the function a symbol names.
func matches(n *callgraph.Node, symbol string) bool {
	if n.QualifiedName == callgraph.PackageNodeName {
		return false
	}
	switch {
	case n.QualifiedName == symbol,
		strings.HasSuffix(n.QualifiedName, "."+symbol),
		strings.HasSuffix(n.QualifiedName, "/"+symbol),
		n.Name == symbol,
		n.Receiver != "" && n.Receiver+"."+n.Name == symbol:
		return true
	}
	return false
}

// Map computes a verdict for every record and every package of g the
// record affects. Verdicts are sorted by advisory id, then package.
func Map(ctx context.Context, g *callgraph.Graph, r *reach.Result, pkgs []*resolve.Package, records []*Record) []*report.Verdict {
	state := make(map[ir.PackageID]resolve.State, len(pkgs))
	for _, p := range pkgs {
		state[p.ID] = p.State
	}
	m := &mapper{g: g, r: r, state: state}

	var verdicts []*report.Verdict
	for _, rec := range records {
		for _, id := range g.Packages() {
			if rec.Affects(id) {
				verdicts = append(verdicts, m.verdict(ctx, rec, id))
			}
		}
	}
	sort.SliceStable(verdicts, func(i, j int) bool {
		a, b := verdicts[i], verdicts[j]
		if a.Advisory != b.Advisory {
			return a.Advisory < b.Advisory
		}
		return ir.Less(a.Package, b.Package)
	})
	verdicts = dedup(verdicts)

	var reachable int
	for _, v := range verdicts {
		if v.Reachable {
			reachable++
		}
	}
	log.Info(ctx, "mapped vulnerabilities",
		slog.Int("records", len(records)),
		slog.Int("verdicts", len(verdicts)),
		slog.Int("reachable", reachable))
	return verdicts
}

// dedup merges verdicts for the same advisory and package, which arise
// when an advisory lists a package in several records. The stronger
// verdict wins: reachable over unreachable, then higher confidence.
func dedup(vs []*report.Verdict) []*report.Verdict {
	var out []*report.Verdict
	for _, v := range vs {
		if n := len(out); n > 0 && out[n-1].Advisory == v.Advisory && out[n-1].Package == v.Package {
			if stronger(v, out[n-1]) {
				out[n-1] = v
			}
			continue
		}
		out = append(out, v)
	}
	return out
}

func stronger(a, b *report.Verdict) bool {
	if a.Reachable != b.Reachable {
		return a.Reachable
	}
	if a.Confidence != b.Confidence {
		return a.Confidence < b.Confidence
	}
	return len(a.Witness) != 0 && (len(b.Witness) == 0 || len(a.Witness) < len(b.Witness))
}

type mapper struct {
	g     *callgraph.Graph
	r     *reach.Result
	state map[ir.PackageID]resolve.State
}

// sinks returns the nodes of pkg that rec marks vulnerable, and a reason
// if some symbols could not be found and the whole package was used.
func (m *mapper) sinks(rec *Record, pkg ir.PackageID) ([]callgraph.NodeID, string) {
	nodes := m.g.PackageNodes(pkg)
	whole := func() []callgraph.NodeID {
		var out []callgraph.NodeID
		for _, id := range nodes {
			n := m.g.Node(id)
			if n.Exported || n.QualifiedName == callgraph.PackageNodeName {
				out = append(out, id)
			}
		}
		return out
	}
	if rec.whole() {
		return whole(), ""
	}
	var out []callgraph.NodeID
	var missing []string
	for _, s := range rec.Symbols {
		found := false
		for _, id := range nodes {
			if matches(m.g.Node(id), s) {
				out = append(out, id)
				found = true
			}
		}
		if !found {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		out = append(out, whole()...)
		return out, fmt.Sprintf("symbols not found in package, assuming whole package: %s", strings.Join(missing, ", "))
	}
	// A package whose code was not completely analyzed may hide further
	// callers of the symbols; its package node stands for that code.
	if p, ok := m.g.Lookup(pkg, callgraph.PackageNodeName); ok {
		out = append(out, p)
	}
	return out, ""
}

func (m *mapper) verdict(ctx context.Context, rec *Record, pkg ir.PackageID) *report.Verdict {
	v := &report.Verdict{Advisory: rec.AdvisoryID, Package: pkg}
	sinks, reason := m.sinks(rec, pkg)

	best := callgraph.NoNode
	for _, id := range sinks {
		if !m.r.Reachable(id) {
			continue
		}
		if best == callgraph.NoNode || m.r.Depth(id) < m.r.Depth(best) ||
			(m.r.Depth(id) == m.r.Depth(best) && id < best) {
			best = id
		}
	}

	st := m.state[pkg]
	switch {
	case best != callgraph.NoNode:
		v.Reachable = true
		v.Symbol = m.g.Node(best).QualifiedName
		path := m.r.Path(best)
		v.Witness = make([]int32, len(path))
		for i, id := range path {
			v.Witness[i] = int32(id)
		}
		v.Trace = m.trace(path)
		v.Confidence = report.High
		if why := m.approximation(path); why != "" {
			v.Confidence, v.Reason = report.Degraded, why
		}
		if reason != "" {
			v.Confidence, v.Reason = report.Degraded, reason
		}
	case m.r.Degraded:
		v.Reachable, v.Confidence = true, report.Low
		v.Reason = "traversal incomplete: " + m.r.Reason
	case st != resolve.Resolved:
		v.Reachable, v.Confidence = true, report.Low
		v.Reason = fmt.Sprintf("package %s, reachability unknown", st)
	default:
		v.Confidence = report.High
		if m.g.Incomplete(pkg) {
			v.Confidence = report.Degraded
			v.Reason = "package not completely analyzed"
		}
	}
	log.Debug(ctx, "verdict",
		slog.String("advisory", v.Advisory),
		slog.String("package", pkg.String()),
		slog.Bool("reachable", v.Reachable),
		slog.String("confidence", v.Confidence.String()))
	return v
}

// approximation returns why a witness path is not exact, or "".
func (m *mapper) approximation(path []callgraph.NodeID) string {
	for i, id := range path {
		n := m.g.Node(id)
		if n.Synthetic {
			return "witness passes through code that was not analyzed"
		}
		if m.g.Incomplete(n.Package) {
			return fmt.Sprintf("witness passes through incompletely analyzed package %s", n.Package)
		}
		if i == 0 {
			continue
		}
		if e, ok := m.g.Edge(path[i-1], id); ok && e.Confidence.Approximate() {
			return fmt.Sprintf("witness uses %s edge into %s", e.Confidence, n.QualifiedName)
		}
	}
	return ""
}

func (m *mapper) trace(path []callgraph.NodeID) []*report.Frame {
	frames := make([]*report.Frame, len(path))
	for i, id := range path {
		n := m.g.Node(id)
		f := &report.Frame{
			Package:   n.Package,
			Function:  n.QualifiedName,
			Receiver:  n.Receiver,
			Synthetic: n.Synthetic,
		}
		if n.File != "" {
			f.Position = &report.Position{Filename: n.File, Line: n.Lines.Start}
		}
		if i > 0 {
			if e, ok := m.g.Edge(path[i-1], id); ok {
				f.Edge = e.Confidence.String()
			}
		}
		frames[i] = f
	}
	return frames
}

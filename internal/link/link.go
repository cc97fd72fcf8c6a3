// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package link resolves the cross-package and dynamic call sites of the
// ingested packages to call graph edges.
//
// A reference is resolved within the scope visible to the calling
// package, in decreasing order of specificity: by qualified name and
// arity, then by bare name to a single candidate, then by bare name to
// all candidates (over-linking). A reference that matches nothing is
// dropped and its package is flagged, so that the call graph builder
// approximates it conservatively.
package link

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
	"golang.org/x/vulnreach/internal/callgraph"
	"golang.org/x/vulnreach/internal/config"
	"golang.org/x/vulnreach/internal/ingest"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/log"
)

// Stats counts call sites by how they were linked.
type Stats struct {
	Local      int // calls within a package
	Exact      int // qualified name and arity
	NameOnly   int // bare name, single candidate
	OverLinked int // bare name, several candidates
	Dynamic    int // dynamic call sites
	Unresolved int // no candidate; approximated by fallback edges
	External   int // references to packages outside the workspace
}

type pkgName struct {
	eco  ir.Ecosystem
	name string
}

// A linker holds the lookup tables over the nodes of an arena.
type linker struct {
	arena  *callgraph.Arena
	policy config.LinkPolicy
	dyn    config.DynamicScope
	b      *callgraph.Builder
	stats  Stats

	// packages is sorted. byName indexes each package's nodes by bare
	// name, and named maps normalized package names to their versions.
	packages []ir.PackageID
	byName   map[ir.PackageID]map[string][]callgraph.NodeID
	named    map[pkgName][]ir.PackageID
}

// Link resolves every call site of the arena's units and records the
// resulting edges, import sites and flags in b.
func Link(ctx context.Context, a *callgraph.Arena, b *callgraph.Builder, cfg *config.Config) Stats {
	l := &linker{
		arena:  a,
		policy: cfg.Link,
		dyn:    cfg.DynamicScope,
		b:      b,
		byName: make(map[ir.PackageID]map[string][]callgraph.NodeID),
		named:  make(map[pkgName][]ir.PackageID),
	}
	for _, u := range a.Units() {
		id := u.Package.ID
		l.packages = append(l.packages, id)
		k := pkgName{id.Ecosystem, ir.NormalizeName(id.Ecosystem, id.Name)}
		l.named[k] = append(l.named[k], id)
		m := make(map[string][]callgraph.NodeID)
		for _, n := range a.PackageNodes(id) {
			name := a.Node(n).Name
			m[name] = append(m[name], n)
		}
		l.byName[id] = m
	}

	for _, u := range a.Units() {
		l.linkUnit(ctx, u)
	}
	log.Info(ctx, "linked call sites",
		slog.Int("local", l.stats.Local),
		slog.Int("exact", l.stats.Exact),
		slog.Int("name_only", l.stats.NameOnly),
		slog.Int("over_linked", l.stats.OverLinked),
		slog.Int("dynamic", l.stats.Dynamic),
		slog.Int("unresolved", l.stats.Unresolved),
		slog.Int("external", l.stats.External))
	return l.stats
}

func (l *linker) linkUnit(ctx context.Context, u *ingest.Unit) {
	id := u.Package.ID
	for _, c := range u.IR.Calls {
		from, ok := l.arena.NodeOf(id, c.Caller)
		if !ok {
			continue
		}
		switch c.Target.Kind {
		case ir.TargetLocal:
			to, ok := l.arena.NodeOf(id, c.Target.Local)
			if !ok {
				continue
			}
			l.stats.Local++
			l.b.AddEdge(from, to, callgraph.Exact)
		case ir.TargetUnresolved:
			l.resolve(ctx, u, from, c.Target.Ref)
		case ir.TargetDynamic:
			l.dynamic(u, from, c.Target.Ref.Package)
		}
	}
}

// scope returns the packages visible to u, sorted.
func (l *linker) scope(u *ingest.Unit) []ir.PackageID {
	if !u.Package.ScopeKnown {
		return l.packages
	}
	seen := map[ir.PackageID]bool{u.Package.ID: true}
	out := []ir.PackageID{u.Package.ID}
	for _, d := range u.Package.Deps {
		if !seen[d] && l.arena.Unit(d) != nil {
			seen[d] = true
			out = append(out, d)
		}
	}
	slices.SortFunc(out, ir.Compare)
	return out
}

// hinted returns the workspace packages a package hint refers to,
// preferring those in scope, and whether they are in scope. The hint may
// name a package or any path below it, such as a Go package within a
// module or a Python submodule; the longest matching package name wins.
func (l *linker) hinted(eco ir.Ecosystem, hint string, scope []ir.PackageID) ([]ir.PackageID, bool) {
	var best []ir.PackageID
	for i := len(hint); i > 0; i-- {
		if i < len(hint) && hint[i] != '/' && hint[i] != '.' {
			continue
		}
		if ids := l.named[pkgName{eco, ir.NormalizeName(eco, hint[:i])}]; len(ids) > 0 {
			best = ids
			break
		}
	}
	if len(best) == 0 {
		return nil, false
	}
	var in []ir.PackageID
	for _, id := range best {
		if contains(scope, id) {
			in = append(in, id)
		}
	}
	if len(in) > 0 {
		return in, true
	}
	return best, false
}

func contains(sorted []ir.PackageID, id ir.PackageID) bool {
	i := sort.Search(len(sorted), func(i int) bool { return !ir.Less(sorted[i], id) })
	return i < len(sorted) && sorted[i] == id
}

func arityMatches(ref, fn int) bool {
	return ref == ir.UnknownArity || fn == ir.UnknownArity || ref == fn
}

func (l *linker) resolve(ctx context.Context, u *ingest.Unit, from callgraph.NodeID, ref ir.SymbolRef) {
	scope := l.scope(u)
	space := scope
	if ref.Package != "" {
		var visible bool
		space, visible = l.hinted(u.Package.ID.Ecosystem, ref.Package, scope)
		if len(space) == 0 {
			l.stats.External++
			return
		}
		if !visible {
			// The package exists but is not a declared dependency.
			l.unresolved(ctx, u, from, ref, space, 0)
			return
		}
	}

	// Exact: qualified name and arity.
	var exact []callgraph.NodeID
	for _, p := range space {
		for _, q := range qualifiedForms(ref) {
			if n, ok := l.arena.Lookup(p, q); ok && arityMatches(ref.Arity, l.arena.Node(n).Arity) {
				exact = append(exact, n)
				break
			}
		}
	}
	switch len(exact) {
	case 0:
	case 1:
		l.stats.Exact++
		l.b.AddEdge(from, exact[0], callgraph.Exact)
		return
	default:
		// Several versions of one package.
		l.stats.OverLinked++
		for _, n := range exact {
			l.b.AddEdge(from, n, callgraph.OverLinked)
		}
		return
	}

	// By bare name.
	bare := ref.BareName()
	var cands []callgraph.NodeID
	for _, p := range space {
		for _, n := range l.byName[p][bare] {
			node := l.arena.Node(n)
			if n != from && arityMatches(ref.Arity, node.Arity) {
				cands = append(cands, n)
			}
		}
	}
	switch {
	case len(cands) == 1:
		l.stats.NameOnly++
		l.b.AddEdge(from, cands[0], callgraph.NameOnly)
		return
	case len(cands) > 1 && l.policy.OverLink && (l.policy.MaxCandidates <= 0 || len(cands) <= l.policy.MaxCandidates):
		l.stats.OverLinked++
		for _, n := range cands {
			l.b.AddEdge(from, n, callgraph.OverLinked)
		}
		return
	}

	l.unresolved(ctx, u, from, ref, space, len(cands))
}

// unresolved records a reference that could not be linked. A hinted
// reference falls back to the packages in space.
func (l *linker) unresolved(ctx context.Context, u *ingest.Unit, from callgraph.NodeID, ref ir.SymbolRef, space []ir.PackageID, cands int) {
	l.stats.Unresolved++
	log.Debug(ctx, "unresolved reference",
		slog.String("package", u.Package.ID.String()),
		slog.String("caller", l.arena.Node(from).QualifiedName),
		slog.String("ref", ref.String()),
		slog.Int("candidates", cands))
	if ref.Package == "" {
		l.b.AddUnknownCall(from)
		return
	}
	l.b.Flag(u.Package.ID)
	for _, p := range space {
		l.b.AddImportSite(from, p)
	}
}

// qualifiedForms returns the qualified names ref may denote.
func qualifiedForms(ref ir.SymbolRef) []string {
	if ref.Package == "" || strings.HasPrefix(ref.Name, ref.Package+".") {
		return []string{ref.Name}
	}
	return []string{ref.Name, ref.Package + "." + ref.Name}
}

// dynamic links a dynamic call site. With a known target package, every
// function of that package is a candidate. Otherwise the candidates are
// every function of the caller's package and, workspace-wide, every
// exported function (or every function, with config.ScopeAll).
func (l *linker) dynamic(u *ingest.Unit, from callgraph.NodeID, hint string) {
	l.stats.Dynamic++
	self := u.Package.ID
	var pkgs []ir.PackageID
	all := true
	if hint != "" {
		pkgs, _ = l.hinted(self.Ecosystem, hint, l.scope(u))
	}
	if len(pkgs) == 0 {
		pkgs = l.packages
		all = l.dyn == config.ScopeAll
	}
	for _, p := range pkgs {
		for _, n := range l.arena.PackageNodes(p) {
			if n == from || !(all || p == self || l.arena.Node(n).Exported) {
				continue
			}
			l.b.AddEdge(from, n, callgraph.Dynamic)
		}
		l.b.AddImportSite(from, p)
	}
}

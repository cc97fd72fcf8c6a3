// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package callgraph

import (
	"context"
	"sort"

	"golang.org/x/exp/slog"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/log"
)

// A Builder accumulates edges over the nodes of an arena and merges them
// into a Graph. It is not safe for concurrent use.
type Builder struct {
	arena   *Arena
	edges   map[[2]NodeID]Confidence
	flagged map[ir.PackageID]bool
	imports map[importSite]bool
}

type importSite struct {
	from NodeID
	pkg  ir.PackageID
}

// NewBuilder returns a builder over the nodes of a.
func NewBuilder(a *Arena) *Builder {
	return &Builder{
		arena:   a,
		edges:   make(map[[2]NodeID]Confidence),
		flagged: make(map[ir.PackageID]bool),
		imports: make(map[importSite]bool),
	}
}

// AddEdge records an edge. An edge added more than once keeps its
// strongest confidence.
func (b *Builder) AddEdge(from, to NodeID, c Confidence) {
	k := [2]NodeID{from, to}
	if old, ok := b.edges[k]; ok && old <= c {
		return
	}
	b.edges[k] = c
}

// Flag marks pkg as having calls that could not be linked.
func (b *Builder) Flag(pkg ir.PackageID) {
	b.flagged[pkg] = true
}

// AddImportSite records that from refers to pkg in a way that could not
// be linked to a specific function. The node receives fallback edges to
// every exported function of pkg.
func (b *Builder) AddImportSite(from NodeID, pkg ir.PackageID) {
	b.imports[importSite{from, pkg}] = true
}

// AddUnknownCall records that from makes a call whose target could not
// be determined at all. The package of from is flagged, and from may
// reach anything that package may call.
func (b *Builder) AddUnknownCall(from NodeID) {
	b.flagged[b.arena.Node(from).Package] = true
}

// Build merges all recorded edges into a graph and adds the fallback
// edges of incomplete packages.
//
// A package is incomplete when it is not cleanly resolved, when some of
// its code could not be analyzed, or when some of its calls could not be
// linked. Each incomplete package P gets a synthetic package node
// standing for its unanalyzed code, and:
//
//   - every node outside P that calls into P, or refers to P through an
//     import site, gets edges to every exported function of P and to the
//     package node of P;
//   - the package node of P gets edges to every exported function of P,
//     and to every exported function (and package node) of the packages
//     P may call;
//   - every analyzed node of P gets an edge to the package node of P, as
//     the code that was not analyzed may be called from anywhere in P.
//
// All such edges have confidence Fallback.
func (b *Builder) Build(ctx context.Context) *Graph {
	a := b.arena
	g := &Graph{
		nodes:      append([]*Node(nil), a.nodes...),
		index:      make(map[nodeKey]NodeID, len(a.index)),
		byPackage:  make(map[ir.PackageID][]NodeID, len(a.units)),
		incomplete: make(map[ir.PackageID]bool),
	}
	for k, v := range a.index {
		g.index[k] = v
	}
	for _, u := range a.units {
		id := u.Package.ID
		g.packages = append(g.packages, id)
		g.byPackage[id] = append([]NodeID(nil), a.byPackage[id]...)
		if u.Degraded() || b.flagged[id] {
			g.incomplete[id] = true
		}
	}

	// Package nodes follow all function nodes, in package order.
	pkgNode := make(map[ir.PackageID]NodeID)
	for _, id := range g.packages {
		if !g.incomplete[id] {
			continue
		}
		n := &Node{
			ID:            NodeID(len(g.nodes)),
			Package:       id,
			QualifiedName: PackageNodeName,
			Name:          PackageNodeName,
			Arity:         ir.UnknownArity,
			Synthetic:     true,
		}
		g.nodes = append(g.nodes, n)
		g.index[nodeKey{id, n.QualifiedName}] = n.ID
		g.byPackage[id] = append(g.byPackage[id], n.ID)
		pkgNode[id] = n.ID
	}

	exported := func(pkg ir.PackageID) []NodeID {
		var out []NodeID
		for _, id := range a.byPackage[pkg] {
			if a.nodes[id].Exported {
				out = append(out, id)
			}
		}
		return out
	}
	edges := make(map[[2]NodeID]Confidence, len(b.edges))
	for k, c := range b.edges {
		edges[k] = c
	}
	fallback := func(from, to NodeID) {
		k := [2]NodeID{from, to}
		if _, ok := edges[k]; !ok {
			edges[k] = Fallback
		}
	}
	into := func(from NodeID, pkg ir.PackageID) {
		for _, to := range exported(pkg) {
			fallback(from, to)
		}
		if p, ok := pkgNode[pkg]; ok {
			fallback(from, p)
		}
	}

	var sites []importSite
	for s := range b.imports {
		sites = append(sites, s)
	}
	for k := range b.edges {
		to := a.nodes[k[1]].Package
		if g.incomplete[to] && a.nodes[k[0]].Package != to {
			sites = append(sites, importSite{k[0], to})
		}
	}
	for _, s := range sites {
		into(s.from, s.pkg)
	}

	for _, id := range g.packages {
		p, ok := pkgNode[id]
		if !ok {
			continue
		}
		for _, to := range exported(id) {
			fallback(p, to)
		}
		u := a.unitOf[id]
		if u.Package.ScopeKnown {
			for _, dep := range u.Package.Deps {
				if dep != id && a.unitOf[dep] != nil {
					into(p, dep)
				}
			}
		} else {
			for _, dep := range g.packages {
				if dep != id {
					into(p, dep)
				}
			}
		}
	}
	// Unanalyzed code of P may be called from anywhere in P.
	for _, id := range g.packages {
		p, ok := pkgNode[id]
		if !ok {
			continue
		}
		for _, from := range a.byPackage[id] {
			if !a.nodes[from].Synthetic {
				fallback(from, p)
			}
		}
	}

	g.out = make([]Edge, 0, len(edges))
	for k, c := range edges {
		if k[0] == k[1] && c == Fallback {
			continue
		}
		g.out = append(g.out, Edge{From: k[0], To: k[1], Confidence: c})
	}
	sort.Slice(g.out, func(i, j int) bool {
		if g.out[i].From != g.out[j].From {
			return g.out[i].From < g.out[j].From
		}
		return g.out[i].To < g.out[j].To
	})
	g.in = append([]Edge(nil), g.out...)
	sort.Slice(g.in, func(i, j int) bool {
		if g.in[i].To != g.in[j].To {
			return g.in[i].To < g.in[j].To
		}
		return g.in[i].From < g.in[j].From
	})
	g.outStart = offsets(len(g.nodes), g.out, func(e Edge) NodeID { return e.From })
	g.inStart = offsets(len(g.nodes), g.in, func(e Edge) NodeID { return e.To })

	s := g.Stats()
	log.Info(ctx, "built call graph",
		slog.Int("nodes", s.Nodes),
		slog.Int("edges", s.Edges),
		slog.Int("incomplete_packages", s.Incomplete),
		slog.Int("fallback_edges", s.ByConfidence[Fallback]))
	return g
}

// offsets returns the CSR start offsets of edges sorted by key.
func offsets(n int, edges []Edge, key func(Edge) NodeID) []int32 {
	start := make([]int32, n+1)
	for _, e := range edges {
		start[key(e)+1]++
	}
	for i := 1; i <= n; i++ {
		start[i] += start[i-1]
	}
	return start
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package callgraph holds the unified call graph over every analyzed
// package: an arena of function nodes with dense integer ids and
// compressed adjacency lists in both directions.
//
// A Graph is immutable once built. Node ids, edge order and every
// derived listing depend only on package identities and qualified names.
package callgraph

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/zeebo/xxh3"
	"golang.org/x/vulnreach/internal/ir"
)

// NodeID identifies a node of a graph. Ids are dense, starting at zero.
type NodeID int32

// NoNode is the NodeID of no node.
const NoNode NodeID = -1

// PackageNodeName is the qualified name of the synthetic node standing
// for the unanalyzed code of an incomplete package.
const PackageNodeName = "<package>"

// A Node is a function of the unified call graph.
type Node struct {
	ID            NodeID
	Package       ir.PackageID
	QualifiedName string
	Name          string
	Receiver      string
	Arity         int
	File          string
	Lines         ir.LineRange

	Exported    bool
	Entrypoint  bool
	DynamicSink bool

	// Synthetic marks nodes that do not correspond to analyzed code:
	// package nodes and the vulnerable symbols of missing packages.
	Synthetic bool
}

func (n *Node) String() string {
	return fmt.Sprintf("%s %s", n.Package, n.QualifiedName)
}

// Confidence describes how an edge was established. Lower values are
// stronger; when the same edge is derived twice the strongest is kept.
type Confidence uint8

const (
	// Exact is a statically resolved call, or a reference linked by
	// qualified name and arity.
	Exact Confidence = iota

	// NameOnly is a reference linked by bare name to a single candidate.
	NameOnly

	// OverLinked is a reference linked by bare name to one of several
	// candidates.
	OverLinked

	// Dynamic is a dynamic call site linked to a candidate target.
	Dynamic

	// Fallback is a conservative edge into an incomplete package.
	Fallback
)

var confidenceNames = [...]string{
	Exact:      "exact",
	NameOnly:   "name-only",
	OverLinked: "over-linked",
	Dynamic:    "dynamic",
	Fallback:   "fallback",
}

func (c Confidence) String() string {
	if int(c) < len(confidenceNames) {
		return confidenceNames[c]
	}
	return "Confidence(" + strconv.Itoa(int(c)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	if int(c) >= len(confidenceNames) {
		return nil, fmt.Errorf("invalid confidence %d", int(c))
	}
	return []byte(c.String()), nil
}

// Approximate reports whether edges of confidence c may not correspond
// to a real call.
func (c Confidence) Approximate() bool {
	return c >= OverLinked
}

// An Edge is a possible call from one node to another.
type Edge struct {
	From, To   NodeID
	Confidence Confidence
}

type nodeKey struct {
	pkg  ir.PackageID
	name string
}

// Graph is the unified call graph. Use a Builder to create one.
type Graph struct {
	nodes []*Node
	index map[nodeKey]NodeID

	// CSR adjacency: the edges leaving node i are out[outStart[i]:outStart[i+1]].
	outStart []int32
	out      []Edge
	inStart  []int32
	in       []Edge

	packages   []ir.PackageID
	byPackage  map[ir.PackageID][]NodeID
	incomplete map[ir.PackageID]bool
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// NumEdges returns the number of edges.
func (g *Graph) NumEdges() int { return len(g.out) }

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) *Node { return g.nodes[id] }

// Nodes returns all nodes in id order. The caller must not modify it.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Out returns the edges leaving id, sorted by target.
func (g *Graph) Out(id NodeID) []Edge {
	return g.out[g.outStart[id]:g.outStart[id+1]]
}

// In returns the edges entering id, sorted by source.
func (g *Graph) In(id NodeID) []Edge {
	return g.in[g.inStart[id]:g.inStart[id+1]]
}

// Edge returns the edge from one node to another, if any.
func (g *Graph) Edge(from, to NodeID) (Edge, bool) {
	out := g.Out(from)
	i := sort.Search(len(out), func(i int) bool { return out[i].To >= to })
	if i < len(out) && out[i].To == to {
		return out[i], true
	}
	return Edge{}, false
}

// Lookup returns the node of pkg with the given qualified name.
func (g *Graph) Lookup(pkg ir.PackageID, qualified string) (NodeID, bool) {
	id, ok := g.index[nodeKey{pkg, qualified}]
	return id, ok
}

// Packages returns the identities of all packages of the graph, sorted.
func (g *Graph) Packages() []ir.PackageID { return g.packages }

// PackageNodes returns the nodes of pkg in id order.
func (g *Graph) PackageNodes(pkg ir.PackageID) []NodeID { return g.byPackage[pkg] }

// Incomplete reports whether the call graph of pkg was approximated
// with fallback edges.
func (g *Graph) Incomplete(pkg ir.PackageID) bool { return g.incomplete[pkg] }

// Fingerprint returns a hash of the graph's nodes and edges. Two graphs
// built from the same inputs have the same fingerprint.
func (g *Graph) Fingerprint() uint64 {
	h := xxh3.New()
	for _, n := range g.nodes {
		fmt.Fprintf(h, "n %d %s %s %t %t %t %t\n", n.ID, n.Package, n.QualifiedName,
			n.Exported, n.Entrypoint, n.DynamicSink, n.Synthetic)
	}
	for _, e := range g.out {
		fmt.Fprintf(h, "e %d %d %d\n", e.From, e.To, e.Confidence)
	}
	return h.Sum64()
}

// Stats summarizes a graph.
type Stats struct {
	Nodes        int
	Edges        int
	Packages     int
	Incomplete   int
	ByConfidence map[Confidence]int
}

// Stats returns summary counts for g.
func (g *Graph) Stats() Stats {
	s := Stats{
		Nodes:        len(g.nodes),
		Edges:        len(g.out),
		Packages:     len(g.packages),
		Incomplete:   len(g.incomplete),
		ByConfidence: make(map[Confidence]int),
	}
	for _, e := range g.out {
		s.ByConfidence[e.Confidence]++
	}
	return s
}

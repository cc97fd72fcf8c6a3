// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package callgraph

import (
	"sort"

	"golang.org/x/vulnreach/internal/ingest"
	"golang.org/x/vulnreach/internal/ir"
)

// An Arena assigns node ids to the functions of a set of units before
// any edge is known, so that the linker can refer to nodes by id.
//
// Nodes are numbered in (package identity, qualified name) order.
type Arena struct {
	units     []*ingest.Unit
	unitOf    map[ir.PackageID]*ingest.Unit
	nodes     []*Node
	index     map[nodeKey]NodeID
	local     map[ir.PackageID]map[ir.LocalID]NodeID
	byPackage map[ir.PackageID][]NodeID
}

// NewArena creates nodes for every function of units, which must be
// sorted by package identity.
//
// symbols lists, per package, names that must exist as nodes even
// though no IR declares them. They are used for packages that were not
// analyzed at all, so that their vulnerable symbols can be reached
// through fallback edges. Names a unit already declares are ignored.
func NewArena(units []*ingest.Unit, symbols map[ir.PackageID][]string) *Arena {
	a := &Arena{
		units:     units,
		unitOf:    make(map[ir.PackageID]*ingest.Unit, len(units)),
		index:     make(map[nodeKey]NodeID),
		local:     make(map[ir.PackageID]map[ir.LocalID]NodeID, len(units)),
		byPackage: make(map[ir.PackageID][]NodeID, len(units)),
	}
	for _, u := range units {
		id := u.Package.ID
		a.unitOf[id] = u
		var nodes []*Node
		local := make(map[ir.LocalID]*Node)
		for _, f := range u.IR.Functions {
			n := &Node{
				Package:       id,
				QualifiedName: f.QualifiedName,
				Name:          f.Name,
				Receiver:      f.Receiver,
				Arity:         f.Arity,
				File:          f.File,
				Lines:         f.Lines,
				Exported:      f.Exported,
				Entrypoint:    f.Entrypoint,
				DynamicSink:   f.DynamicSink,
			}
			nodes = append(nodes, n)
			local[f.ID] = n
		}
		if len(u.IR.Functions) == 0 {
			for _, s := range symbols[id] {
				if u.Function(s) != nil {
					continue
				}
				nodes = append(nodes, &Node{
					Package:       id,
					QualifiedName: s,
					Name:          ir.BareName(s),
					Arity:         ir.UnknownArity,
					Exported:      true,
					Synthetic:     true,
				})
			}
		}
		sort.SliceStable(nodes, func(i, j int) bool {
			return nodes[i].QualifiedName < nodes[j].QualifiedName
		})
		for _, n := range nodes {
			k := nodeKey{id, n.QualifiedName}
			if _, dup := a.index[k]; dup {
				continue
			}
			n.ID = NodeID(len(a.nodes))
			a.nodes = append(a.nodes, n)
			a.index[k] = n.ID
			a.byPackage[id] = append(a.byPackage[id], n.ID)
		}
		m := make(map[ir.LocalID]NodeID, len(local))
		for lid, n := range local {
			m[lid] = n.ID
		}
		a.local[id] = m
	}
	return a
}

// Len returns the number of nodes.
func (a *Arena) Len() int { return len(a.nodes) }

// Node returns the node with the given id.
func (a *Arena) Node(id NodeID) *Node { return a.nodes[id] }

// Units returns the units of the arena, sorted by package identity.
func (a *Arena) Units() []*ingest.Unit { return a.units }

// Unit returns the unit of pkg, or nil.
func (a *Arena) Unit(pkg ir.PackageID) *ingest.Unit { return a.unitOf[pkg] }

// NodeOf returns the node of the function with local id lid in pkg.
func (a *Arena) NodeOf(pkg ir.PackageID, lid ir.LocalID) (NodeID, bool) {
	id, ok := a.local[pkg][lid]
	return id, ok
}

// Lookup returns the node of pkg with the given qualified name.
func (a *Arena) Lookup(pkg ir.PackageID, qualified string) (NodeID, bool) {
	id, ok := a.index[nodeKey{pkg, qualified}]
	return id, ok
}

// PackageNodes returns the nodes of pkg in id order.
func (a *Arena) PackageNodes(pkg ir.PackageID) []NodeID { return a.byPackage[pkg] }

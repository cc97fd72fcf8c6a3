// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reach computes the set of call graph nodes reachable from a
// set of entry points, with a shortest predecessor chain for each.
package reach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
	"golang.org/x/vulnreach/internal/callgraph"
	"golang.org/x/vulnreach/internal/config"
	"golang.org/x/vulnreach/internal/log"
)

// State is the lifecycle state of an Engine.
type State int

const (
	Uninitialized State = iota
	GraphReady
	Traversed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case GraphReady:
		return "graph-ready"
	case Traversed:
		return "traversed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrState is returned when an Engine method is called in the wrong state.
var ErrState = errors.New("reach: invalid engine state")

// clockInterval is the number of visited nodes between wall-clock checks.
const clockInterval = 256

// An Engine traverses one graph once: Load moves it from Uninitialized
// to GraphReady, and Traverse from GraphReady to Traversed.
type Engine struct {
	budget config.Budget
	state  State
	g      *callgraph.Graph
	result *Result
}

// New returns an engine with the given traversal budget.
func New(budget config.Budget) *Engine {
	return &Engine{budget: budget}
}

// State returns the current state of e.
func (e *Engine) State() State { return e.state }

// Load sets the graph to traverse.
func (e *Engine) Load(g *callgraph.Graph) error {
	if e.state != Uninitialized {
		return fmt.Errorf("%w: Load in state %v", ErrState, e.state)
	}
	if g == nil {
		return errors.New("reach: nil graph")
	}
	e.g = g
	e.state = GraphReady
	return nil
}

// Result returns the result of the traversal.
func (e *Engine) Result() (*Result, error) {
	if e.state != Traversed {
		return nil, fmt.Errorf("%w: Result in state %v", ErrState, e.state)
	}
	return e.result, nil
}

// Traverse runs a breadth-first search from entries over the loaded
// graph. Duplicate entries are ignored and the order of entries does not
// affect the result.
//
// The traversal stops early when the budget is exhausted; the result is
// then marked degraded and holds the nodes visited so far. Traversal is
// not interrupted by ctx, which is used for logging only.
func (e *Engine) Traverse(ctx context.Context, entries []callgraph.NodeID) (*Result, error) {
	if e.state != GraphReady {
		return nil, fmt.Errorf("%w: Traverse in state %v", ErrState, e.state)
	}
	g := e.g
	for _, id := range entries {
		if id < 0 || int(id) >= g.Len() {
			return nil, fmt.Errorf("reach: entry point %d out of range [0, %d)", id, g.Len())
		}
	}
	entries = append([]callgraph.NodeID(nil), entries...)
	slices.Sort(entries)

	r := &Result{
		g:       g,
		visited: roaring.New(),
		pred:    make([]callgraph.NodeID, g.Len()),
		depth:   make([]int32, g.Len()),
	}
	for i := range r.pred {
		r.pred[i] = callgraph.NoNode
		r.depth[i] = -1
	}

	start := time.Now()
	var queue []callgraph.NodeID
	// visit marks id as reached and reports whether the budget allows
	// continuing.
	visit := func(id, from callgraph.NodeID, depth int32) bool {
		if e.budget.MaxNodes > 0 && int(r.visited.GetCardinality()) >= e.budget.MaxNodes {
			r.degrade(fmt.Sprintf("node budget of %d exhausted", e.budget.MaxNodes))
			return false
		}
		r.visited.Add(uint32(id))
		r.pred[id] = from
		r.depth[id] = depth
		queue = append(queue, id)
		return true
	}

	ok := true
	for _, id := range entries {
		if r.visited.Contains(uint32(id)) {
			continue
		}
		r.Entries = append(r.Entries, id)
		if ok = visit(id, callgraph.NoNode, 0); !ok {
			break
		}
	}
	for head := 0; ok && head < len(queue); head++ {
		if e.budget.MaxDuration > 0 && head%clockInterval == clockInterval-1 && time.Since(start) > e.budget.MaxDuration {
			r.degrade(fmt.Sprintf("time budget of %v exhausted", e.budget.MaxDuration))
			break
		}
		n := queue[head]
		for _, edge := range g.Out(n) {
			if r.visited.Contains(uint32(edge.To)) {
				continue
			}
			if ok = visit(edge.To, n, r.depth[n]+1); !ok {
				break
			}
		}
	}

	e.result = r
	e.state = Traversed
	attrs := []slog.Attr{
		slog.Int("entries", len(r.Entries)),
		slog.Int("reachable", r.Count()),
		slog.Int("nodes", g.Len()),
		slog.Duration("elapsed", time.Since(start)),
	}
	if r.Degraded {
		attrs = append(attrs, slog.String("degraded", r.Reason))
		log.Warn(ctx, "traversal stopped early", attrs...)
	} else {
		log.Info(ctx, "traversal complete", attrs...)
	}
	return r, nil
}

// Result is the outcome of a traversal.
type Result struct {
	// Entries are the distinct entry points the traversal started from,
	// sorted.
	Entries []callgraph.NodeID

	// Degraded reports that the traversal stopped before visiting every
	// reachable node. Nodes it did not visit may still be reachable.
	Degraded bool

	// Reason explains why the traversal is degraded.
	Reason string

	g       *callgraph.Graph
	visited *roaring.Bitmap
	pred    []callgraph.NodeID
	depth   []int32
}

func (r *Result) degrade(reason string) {
	r.Degraded = true
	r.Reason = reason
}

// Reachable reports whether the traversal visited id.
func (r *Result) Reachable(id callgraph.NodeID) bool {
	return r.visited.Contains(uint32(id))
}

// Count returns the number of visited nodes.
func (r *Result) Count() int {
	return int(r.visited.GetCardinality())
}

// Nodes returns the visited nodes in increasing order.
func (r *Result) Nodes() []callgraph.NodeID {
	ids := r.visited.ToArray()
	out := make([]callgraph.NodeID, len(ids))
	for i, id := range ids {
		out[i] = callgraph.NodeID(id)
	}
	return out
}

// Pred returns the node from which id was first reached, or NoNode for
// entry points and unvisited nodes.
func (r *Result) Pred(id callgraph.NodeID) callgraph.NodeID {
	return r.pred[id]
}

// Depth returns the number of edges between id and the nearest entry
// point, or -1 if id was not visited.
func (r *Result) Depth(id callgraph.NodeID) int {
	return int(r.depth[id])
}

// Path returns a shortest path from an entry point to id, starting with
// the entry point and ending with id, or nil if id was not visited.
func (r *Result) Path(id callgraph.NodeID) []callgraph.NodeID {
	if !r.Reachable(id) {
		return nil
	}
	path := make([]callgraph.NodeID, r.depth[id]+1)
	for i := len(path) - 1; i >= 0; i-- {
		path[i] = id
		id = r.pred[id]
	}
	return path
}

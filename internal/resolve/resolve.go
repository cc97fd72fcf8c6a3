// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resolve locates the source tree of every package of a manifest
// and classifies the outcome as resolved, ambiguous or missing.
//
// Resolution never fails because a package cannot be found: the outcome
// is recorded and later stages treat unresolved packages conservatively.
package resolve

import (
	"context"
	"fmt"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/vulnreach/internal/derrors"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/log"
	"golang.org/x/vulnreach/internal/manifest"
)

// State is the outcome of resolving a package.
type State int

const (
	// Resolved means exactly one source tree was found.
	Resolved State = iota

	// Ambiguous means several candidate source trees were found at the
	// same location; the first one is used.
	Ambiguous

	// Missing means no source tree was found.
	Missing
)

var stateNames = [...]string{
	Resolved:  "resolved",
	Ambiguous: "ambiguous",
	Missing:   "missing",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("invalid state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown resolution state %q", b)
}

// Package is a manifest package together with its resolution outcome.
// It is not modified after resolution.
type Package struct {
	ID ir.PackageID `json:"id"`

	// SourceRoot is the directory holding the package source, or "" if
	// the package is missing.
	SourceRoot string `json:"source_root,omitempty"`

	State State `json:"state"`

	// Candidates lists every directory found at the winning location.
	// It has more than one element only for ambiguous packages.
	Candidates []string `json:"candidates,omitempty"`

	// Location names the location SourceRoot was found in.
	Location string `json:"location,omitempty"`

	// Deps lists the declared dependencies of the package.
	Deps []ir.PackageID `json:"deps,omitempty"`

	// ScopeKnown reports whether Deps is authoritative. When false, the
	// package may link against any package of the workspace.
	ScopeKnown bool `json:"scope_known,omitempty"`

	// Main marks the application being analyzed.
	Main bool `json:"main,omitempty"`
}

// Resolver locates package sources by searching Locations in order.
// A Resolver may be shared by concurrent Resolve calls; each package
// identity is then probed by one of them at a time.
type Resolver struct {
	Locations []Location

	// Workers bounds the number of packages resolved concurrently.
	// Zero or less means one.
	Workers int

	group singleflight.Group
}

// New returns a resolver searching locs in order.
func New(locs []Location, workers int) *Resolver {
	return &Resolver{Locations: locs, Workers: workers}
}

type outcome struct {
	state      State
	root       string
	candidates []string
	location   string
}

// Resolve resolves every package of m. The result is in manifest order.
// It returns an error only if ctx is canceled or a location fails for a
// reason other than the package being absent.
func (r *Resolver) Resolve(ctx context.Context, m *manifest.Manifest) (_ []*Package, err error) {
	defer derrors.Wrap(&err, "Resolve")

	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	out := make([]*Package, len(m.Packages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, e := range m.Packages {
		i, id := i, e.ID()
		g.Go(func() error {
			o, err := r.probe(gctx, id)
			if err != nil {
				return err
			}
			out[i] = &Package{
				ID:         id,
				SourceRoot: o.root,
				State:      o.state,
				Candidates: o.candidates,
				Location:   o.location,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scoped := m.DeclaresEdges()
	counts := make(map[State]int)
	for i, p := range out {
		p.Main = m.Packages[i].Main
		p.ScopeKnown = scoped
		deps, unknown := m.Deps(i)
		p.Deps = deps
		for _, u := range unknown {
			log.Warn(ctx, "unknown requirement", slog.String("package", p.ID.String()), slog.String("requires", u))
		}
		counts[p.State]++
		if p.State != Resolved {
			log.Debug(ctx, "package not cleanly resolved",
				slog.String("package", p.ID.String()),
				slog.String("state", p.State.String()),
				slog.Int("candidates", len(p.Candidates)))
		}
	}
	log.Info(ctx, "resolved packages",
		slog.Int("resolved", counts[Resolved]),
		slog.Int("ambiguous", counts[Ambiguous]),
		slog.Int("missing", counts[Missing]))
	return out, nil
}

func (r *Resolver) probe(ctx context.Context, id ir.PackageID) (outcome, error) {
	v, err, _ := r.group.Do(id.String(), func() (interface{}, error) {
		return r.locate(ctx, id)
	})
	if err != nil {
		return outcome{}, err
	}
	return v.(outcome), nil
}

// locate searches the locations in order and stops at the first one with
// any candidate.
func (r *Resolver) locate(ctx context.Context, id ir.PackageID) (outcome, error) {
	for _, loc := range r.Locations {
		if err := ctx.Err(); err != nil {
			return outcome{}, err
		}
		cands, err := loc.Candidates(ctx, id)
		if err != nil {
			return outcome{}, fmt.Errorf("%s: %s: %w", loc.Name(), id, err)
		}
		if len(cands) == 0 {
			continue
		}
		o := outcome{state: Resolved, root: cands[0], candidates: cands, location: loc.Name()}
		if len(cands) > 1 {
			o.state = Ambiguous
		}
		return o, nil
	}
	return outcome{state: Missing}, nil
}

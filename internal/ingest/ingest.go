// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ingest pairs resolved packages with their front-end output and
// normalizes each pair into a unit ready for linking.
//
// Units are produced in parallel and delivered over a channel to a single
// collector, which orders them by package identity so that nothing
// downstream depends on worker completion order.
package ingest

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/vulnreach/internal/derrors"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/log"
	"golang.org/x/vulnreach/internal/resolve"
)

// Unit is a resolved package together with its normalized IR.
type Unit struct {
	Package *resolve.Package

	// IR is never nil. Its functions are sorted by qualified name and
	// every call site refers to an existing caller and, for local
	// targets, an existing callee.
	IR *ir.Package

	// Missing reports that a resolved package came without any IR.
	Missing bool

	// Dropped counts call sites removed because they referred to
	// functions the package does not declare.
	Dropped int

	byName map[string]*ir.Function
	byID   map[ir.LocalID]*ir.Function
}

// Degraded reports whether the call graph of the unit may be incomplete.
func (u *Unit) Degraded() bool {
	return u.Package.State != resolve.Resolved || u.IR.HasUnresolvedCalls
}

// Function returns the function with the given qualified name, or nil.
func (u *Unit) Function(qualified string) *ir.Function {
	return u.byName[qualified]
}

// FunctionByID returns the function with the given local id, or nil.
func (u *Unit) FunctionByID(id ir.LocalID) *ir.Function {
	return u.byID[id]
}

// Ingest normalizes units for every package in pkgs using up to workers
// goroutines, and returns them sorted by package identity.
//
// It is an error for irs to hold IR of a package that is not in pkgs, or
// for two IR packages to share an identity. A resolved package with no IR
// yields an empty unit flagged as having unresolved calls; a missing
// package yields an empty unit.
func Ingest(ctx context.Context, workers int, pkgs []*resolve.Package, irs []*ir.Package) (_ []*Unit, err error) {
	defer derrors.Wrap(&err, "Ingest")

	byID := make(map[ir.PackageID]*resolve.Package, len(pkgs))
	for _, p := range pkgs {
		if byID[p.ID] != nil {
			return nil, fmt.Errorf("duplicate package %s", p.ID)
		}
		byID[p.ID] = p
	}
	code := make(map[ir.PackageID]*ir.Package, len(irs))
	for _, u := range irs {
		if byID[u.ID] == nil {
			return nil, fmt.Errorf("IR for unknown package %s", u.ID)
		}
		if code[u.ID] != nil {
			return nil, fmt.Errorf("duplicate IR for package %s", u.ID)
		}
		code[u.ID] = u
	}

	if workers <= 0 {
		workers = 1
	}
	results := make(chan *Unit)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers + 1)
	g.Go(func() error {
		// The launcher occupies one slot so that the limit applies to
		// the workers alone.
		for _, p := range pkgs {
			p := p
			g.Go(func() error {
				u, err := normalize(gctx, p, code[p.ID])
				if err != nil {
					return err
				}
				select {
				case results <- u:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		return nil
	})
	go func() {
		// Wait is called again below for the error; it is idempotent.
		g.Wait()
		close(results)
	}()

	units := collect(results)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info(ctx, "ingested packages", slog.Int("packages", len(units)), slog.Int("with_ir", len(code)))
	return units, nil
}

// collect drains ch and orders the units by package identity.
func collect(ch <-chan *Unit) []*Unit {
	var units []*Unit
	for u := range ch {
		units = append(units, u)
	}
	slices.SortFunc(units, func(a, b *Unit) int {
		return ir.Compare(a.Package.ID, b.Package.ID)
	})
	return units
}

// normalize validates code and returns a unit for p. code may be nil.
func normalize(ctx context.Context, p *resolve.Package, code *ir.Package) (*Unit, error) {
	u := &Unit{Package: p}
	if code == nil {
		u.IR = &ir.Package{ID: p.ID}
		if p.State != resolve.Missing {
			u.Missing = true
			u.IR.HasUnresolvedCalls = true
			log.Warn(ctx, "no IR for resolved package", slog.String("package", p.ID.String()))
		}
		u.index()
		return u, nil
	}
	if err := code.Validate(); err != nil {
		return nil, err
	}

	// Copy so the caller's IR is never modified.
	out := &ir.Package{
		ID:                 code.ID,
		Files:              append([]string(nil), code.Files...),
		Functions:          make([]*ir.Function, len(code.Functions)),
		FileErrors:         append([]*ir.ParseError(nil), code.FileErrors...),
		HasUnresolvedCalls: code.HasUnresolvedCalls || len(code.FileErrors) > 0,
	}
	for i, f := range code.Functions {
		c := *f
		out.Functions[i] = &c
	}
	sort.Slice(out.Functions, func(i, j int) bool {
		return out.Functions[i].QualifiedName < out.Functions[j].QualifiedName
	})
	u.IR = out
	u.index()

	for _, c := range code.Calls {
		caller := u.byID[c.Caller]
		if caller == nil || (c.Target.Kind == ir.TargetLocal && u.byID[c.Target.Local] == nil) {
			u.Dropped++
			continue
		}
		if c.Target.Kind == ir.TargetDynamic {
			caller.DynamicSink = true
		}
		cc := *c
		out.Calls = append(out.Calls, &cc)
	}
	if u.Dropped > 0 {
		out.HasUnresolvedCalls = true
		log.Warn(ctx, "dropped dangling call sites",
			slog.String("package", p.ID.String()), slog.Int("dropped", u.Dropped))
	}
	sort.SliceStable(out.Calls, func(i, j int) bool {
		a, b := out.Calls[i], out.Calls[j]
		if a.Caller != b.Caller {
			return u.byID[a.Caller].QualifiedName < u.byID[b.Caller].QualifiedName
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	if len(out.FileErrors) > 0 {
		log.Debug(ctx, "package has unparseable files",
			slog.String("package", p.ID.String()), slog.Int("files", len(out.FileErrors)))
	}
	return u, nil
}

func (u *Unit) index() {
	u.byName = make(map[string]*ir.Function, len(u.IR.Functions))
	u.byID = make(map[ir.LocalID]*ir.Function, len(u.IR.Functions))
	for _, f := range u.IR.Functions {
		u.byName[f.QualifiedName] = f
		u.byID[f.ID] = f
	}
}

// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gofront produces IR for Go code by building SSA for a set of
// loaded packages.
//
// Each Go module becomes one IR package. Static calls become local calls
// or references qualified by package path, interface method calls
// become references by bare method name, and calls through function
// values or package reflect become dynamic calls.
package gofront

import (
	"context"
	"errors"
	"go/token"
	"go/types"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/slog"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
	"golang.org/x/vulnreach/internal/derrors"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/log"
)

// StdlibModule is the module path of the standard library.
const StdlibModule = "stdlib"

// LoadMode is the packages.LoadMode Build requires.
const LoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedModule |
	packages.NeedTypes |
	packages.NeedTypesSizes |
	packages.NeedSyntax |
	packages.NeedTypesInfo

// Load loads the packages matching patterns with all their dependencies
// and returns their IR.
func Load(ctx context.Context, cfg *packages.Config, patterns ...string) (_ []*ir.Package, err error) {
	defer derrors.Wrap(&err, "gofront.Load(%q)", patterns)

	c := *cfg
	c.Context = ctx
	c.Mode |= LoadMode
	pkgs, err := packages.Load(&c, patterns...)
	if err != nil {
		return nil, err
	}
	goVersion, err := stdlibVersion(ctx, &c)
	if err != nil {
		log.Warn(ctx, "cannot determine Go version", slog.String("error", err.Error()))
	}
	out := Build(pkgs, goVersion)
	var broken int
	for _, p := range out {
		if len(p.FileErrors) > 0 {
			broken++
			log.Warn(ctx, "Go module has errors",
				slog.String("module", p.ID.Name),
				slog.Int("errors", len(p.FileErrors)))
		}
	}
	log.Info(ctx, "built Go IR",
		slog.Int("packages", len(pkgs)),
		slog.Int("modules", len(out)),
		slog.Int("modules_with_errors", broken))
	return out, nil
}

// Build returns the IR of pkgs and all their dependencies, one package
// per module, sorted by module path. pkgs must have been loaded with at
// least LoadMode. The standard library module has version goVersion.
//
// Packages that fail to load or type check are recorded as file errors
// of their module.
func Build(pkgs []*packages.Package, goVersion string) []*ir.Package {
	b := &builder{
		goVersion: goVersion,
		modules:   make(map[string]*module),
		modOf:     make(map[string]*module),
	}
	packages.Visit(pkgs, nil, b.addPackage)

	prog, _ := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	prog.Build()
	b.fset = prog.Fset

	var fns []*ssa.Function
	for f := range ssautil.AllFunctions(prog) {
		fns = append(fns, f)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].String() < fns[j].String() })
	for _, f := range fns {
		b.addFunction(f)
	}
	return b.finish()
}

type module struct {
	pkg   *ir.Package
	dir   string
	files map[string]bool
	funcs map[string]*ir.Function
	calls []call
}

// rel returns name relative to the module directory, if it is inside it.
func (m *module) rel(name string) string {
	if m.dir != "" {
		if r, err := filepath.Rel(m.dir, name); err == nil && !strings.HasPrefix(r, "..") {
			return filepath.ToSlash(r)
		}
	}
	return filepath.ToSlash(name)
}

// A call is a call site whose local callee is still named by qualified
// name.
type call struct {
	caller string
	callee string // set for local calls
	target ir.Target
	file   string
	line   int
}

type builder struct {
	fset      *token.FileSet
	goVersion string
	modules   map[string]*module // by module path
	modOf     map[string]*module // by package path
}

func (b *builder) addPackage(p *packages.Package) {
	path, version, dir := StdlibModule, b.goVersion, ""
	switch {
	case p.Module != nil:
		m := p.Module
		path, version, dir = m.Path, m.Version, m.Dir
		if r := m.Replace; r != nil {
			version = r.Version
			if r.Dir != "" {
				dir = r.Dir
			}
		}
	case !isStdlib(p.PkgPath):
		// GOPATH mode: each package stands alone.
		path, version = p.PkgPath, ""
	}
	mod := b.modules[path]
	if mod == nil {
		mod = &module{
			pkg:   &ir.Package{ID: ir.PackageID{Ecosystem: ir.Go, Name: path, Version: version}},
			dir:   dir,
			files: make(map[string]bool),
			funcs: make(map[string]*ir.Function),
		}
		b.modules[path] = mod
	}
	b.modOf[p.PkgPath] = mod
	for _, f := range p.CompiledGoFiles {
		mod.files[mod.rel(f)] = true
	}
	for _, e := range p.Errors {
		file := errorFile(e)
		if file == "" {
			file = p.PkgPath
		} else {
			file = mod.rel(file)
		}
		mod.pkg.MarkFileError(file, errors.New(e.Msg))
	}
}

func isStdlib(pkgPath string) bool {
	first, _, _ := strings.Cut(pkgPath, "/")
	return !strings.Contains(first, ".")
}

// errorFile returns the file of a "file:line:col" error position.
func errorFile(e packages.Error) string {
	pos := e.Pos
	for i := 0; i < 2; i++ {
		j := strings.LastIndexByte(pos, ':')
		if j < 0 {
			break
		}
		if _, err := strconv.Atoi(pos[j+1:]); err != nil {
			break
		}
		pos = pos[:j]
	}
	if pos == "-" {
		return ""
	}
	return pos
}

// topLevel returns the declared function f belongs to: the enclosing
// function of a closure and the generic origin of an instantiation.
func topLevel(f *ssa.Function) *ssa.Function {
	for f.Parent() != nil {
		f = f.Parent()
	}
	if o := f.Origin(); o != nil {
		f = o
	}
	return f
}

// name returns the qualified name, bare name and receiver type name of
// a declared function, and the path of its package.
func name(f *ssa.Function) (qualified, bare, recv, pkgPath string, ok bool) {
	if obj, isFunc := f.Object().(*types.Func); isFunc {
		if obj.Pkg() == nil {
			return "", "", "", "", false
		}
		return objName(obj)
	}
	if f.Pkg == nil {
		return "", "", "", "", false
	}
	pkgPath = f.Pkg.Pkg.Path()
	return pkgPath + "." + f.Name(), f.Name(), "", pkgPath, true
}

func objName(obj *types.Func) (qualified, bare, recv, pkgPath string, ok bool) {
	bare, pkgPath = obj.Name(), obj.Pkg().Path()
	if sig, isSig := obj.Type().(*types.Signature); isSig && sig.Recv() != nil {
		recv = recvName(sig.Recv().Type())
	}
	if recv != "" {
		return pkgPath + "." + recv + "." + bare, bare, recv, pkgPath, true
	}
	return pkgPath + "." + bare, bare, "", pkgPath, true
}

func recvName(t types.Type) string {
	if p, ok := t.(*types.Pointer); ok {
		t = p.Elem()
	}
	if n, ok := t.(*types.Named); ok {
		return n.Obj().Name()
	}
	return ""
}

func arity(sig *types.Signature) int {
	if sig == nil {
		return ir.UnknownArity
	}
	return sig.Params().Len()
}

func (b *builder) addFunction(f *ssa.Function) {
	top := topLevel(f)
	if top.Pkg == nil {
		// Wrappers forward to functions handled on their own.
		return
	}
	qn, bare, recv, pkgPath, ok := name(top)
	if !ok {
		return
	}
	mod := b.modOf[pkgPath]
	if mod == nil {
		return
	}
	if mod.funcs[qn] == nil {
		fn := &ir.Function{
			QualifiedName: qn,
			Name:          bare,
			Receiver:      recv,
			Arity:         arity(top.Signature),
			Exported:      token.IsExported(bare),
			Entrypoint:    recv == "" && (bare == "init" || (bare == "main" && top.Pkg.Pkg.Name() == "main")),
		}
		if top.Pos().IsValid() {
			pos := b.fset.Position(top.Pos())
			fn.File = mod.rel(pos.Filename)
			fn.Lines.Start = pos.Line
			if syn := top.Syntax(); syn != nil {
				fn.Lines.End = b.fset.Position(syn.End()).Line
			}
		}
		mod.funcs[qn] = fn
	}
	for _, blk := range f.Blocks {
		for _, instr := range blk.Instrs {
			if c, ok := instr.(ssa.CallInstruction); ok {
				b.addCall(mod, qn, c)
			}
		}
	}
}

func (b *builder) addCall(mod *module, caller string, c ssa.CallInstruction) {
	common := c.Common()
	cl := call{caller: caller}
	if c.Pos().IsValid() {
		pos := b.fset.Position(c.Pos())
		cl.file, cl.line = mod.rel(pos.Filename), pos.Line
	}
	switch {
	case common.IsInvoke():
		sig, _ := common.Method.Type().(*types.Signature)
		cl.target = ir.Unresolved(ir.SymbolRef{Name: common.Method.Name(), Arity: arity(sig)})

	case common.StaticCallee() != nil:
		callee := common.StaticCallee()
		var (
			qn, pkgPath string
			sig         *types.Signature
			ok          bool
		)
		if obj, isFunc := callee.Object().(*types.Func); isFunc && obj.Pkg() != nil {
			if isReflectCall(obj) {
				cl.target = ir.Dynamic("")
				break
			}
			qn, _, _, pkgPath, ok = objName(obj)
			sig, _ = obj.Type().(*types.Signature)
		} else {
			top := topLevel(callee)
			qn, _, _, pkgPath, ok = name(top)
			sig = top.Signature
		}
		if !ok {
			return
		}
		target := b.modOf[pkgPath]
		if target == nil {
			return
		}
		if target == mod {
			cl.callee = qn
			break
		}
		cl.target = ir.Unresolved(ir.SymbolRef{Package: target.pkg.ID.Name, Name: qn, Arity: arity(sig)})

	default:
		if _, ok := common.Value.(*ssa.Builtin); ok {
			return
		}
		cl.target = ir.Dynamic(b.valueModule(common.Value))
	}
	mod.calls = append(mod.calls, cl)
}

// isReflectCall reports whether obj calls a function through package
// reflect.
func isReflectCall(obj *types.Func) bool {
	if obj.Pkg().Path() != "reflect" {
		return false
	}
	sig, ok := obj.Type().(*types.Signature)
	if !ok || sig.Recv() == nil || recvName(sig.Recv().Type()) != "Value" {
		return false
	}
	return obj.Name() == "Call" || obj.Name() == "CallSlice"
}

// valueModule returns the module whose code a called function value most
// likely holds, or "" if unknown.
func (b *builder) valueModule(v ssa.Value) string {
	var pkg *types.Package
	if n, ok := v.Type().(*types.Named); ok {
		pkg = n.Obj().Pkg()
	}
	if u, ok := v.(*ssa.UnOp); ok {
		if g, ok := u.X.(*ssa.Global); ok && g.Pkg != nil {
			pkg = g.Pkg.Pkg
		}
	}
	if pkg == nil {
		return ""
	}
	if m := b.modOf[pkg.Path()]; m != nil {
		return m.pkg.ID.Name
	}
	return ""
}

func (b *builder) finish() []*ir.Package {
	paths := make([]string, 0, len(b.modules))
	for p := range b.modules {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []*ir.Package
	for _, path := range paths {
		mod := b.modules[path]
		p := mod.pkg
		for f := range mod.files {
			p.Files = append(p.Files, f)
		}
		sort.Strings(p.Files)

		names := make([]string, 0, len(mod.funcs))
		for n := range mod.funcs {
			names = append(names, n)
		}
		sort.Strings(names)
		ids := make(map[string]ir.LocalID, len(names))
		for i, n := range names {
			fn := mod.funcs[n]
			fn.ID = ir.LocalID(i)
			ids[n] = fn.ID
			p.Functions = append(p.Functions, fn)
		}
		for _, c := range mod.calls {
			site := &ir.CallSite{Caller: ids[c.caller], Target: c.target, File: c.file, Line: c.line}
			if c.callee != "" {
				id, ok := ids[c.callee]
				if !ok {
					continue
				}
				site.Target = ir.Local(id)
			}
			p.Calls = append(p.Calls, site)
		}
		out = append(out, p)
	}
	return out
}

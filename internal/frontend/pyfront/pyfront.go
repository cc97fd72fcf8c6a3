// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pyfront produces IR for Python packages by parsing their
// source with tree-sitter.
//
// Module-level code of each module is a function named "<module>".
// Importing a module calls its "<module>" function. Calls are resolved
// through the imports of the calling module where possible; eval, exec,
// getattr, __import__ and importlib.import_module become dynamic calls.
package pyfront

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/vulnreach/internal/derrors"
	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/log"
	"golang.org/x/vulnreach/internal/resolve"
)

// ModuleFunc is the name of the function holding the module-level code
// of a module.
const ModuleFunc = "<module>"

// ParseAll parses every Python package of pkgs that has a source root,
// using up to workers goroutines. Module-level code of main packages is
// marked as entry points. The result is in the order of pkgs.
func ParseAll(ctx context.Context, workers int, pkgs []*resolve.Package) (_ []*ir.Package, err error) {
	defer derrors.Wrap(&err, "pyfront.ParseAll")

	out := make([]*ir.Package, len(pkgs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range pkgs {
		i, p := i, p
		if p.ID.Ecosystem != ir.PyPI || p.SourceRoot == "" {
			continue
		}
		g.Go(func() error {
			u, err := ParseDir(ctx, p.ID, p.SourceRoot)
			if err != nil {
				return err
			}
			if p.Main {
				for _, f := range u.Functions {
					if f.Name == ModuleFunc {
						f.Entrypoint = true
					}
				}
			}
			out[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var units []*ir.Package
	for _, u := range out {
		if u != nil {
			units = append(units, u)
		}
	}
	return units, nil
}

// ParseDir parses the Python package rooted at dir. The import name of
// the package is the base name of dir.
//
// Files with syntax errors are recorded in the result and otherwise
// skipped.
func ParseDir(ctx context.Context, id ir.PackageID, dir string) (_ *ir.Package, err error) {
	defer derrors.Wrap(&err, "pyfront.ParseDir(%q)", dir)

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (d.Name() == "__pycache__" || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".py") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	p := &parser{
		pkg:    &ir.Package{ID: id},
		base:   filepath.Base(dir),
		parser: sitter.NewParser(),
		funcs:  make(map[string]*ir.Function),
	}
	p.parser.SetLanguage(python.GetLanguage())
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil, err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := p.parseFile(ctx, filepath.ToSlash(rel), src); err != nil {
			return nil, err
		}
	}
	u := p.finish()
	log.Debug(ctx, "parsed Python package",
		slog.String("package", id.String()),
		slog.Int("files", len(files)),
		slog.Int("functions", len(u.Functions)),
		slog.Int("calls", len(u.Calls)),
		slog.Int("file_errors", len(u.FileErrors)))
	return u, nil
}

type parser struct {
	pkg    *ir.Package
	base   string
	parser *sitter.Parser
	funcs  map[string]*ir.Function
	calls  []call
}

type call struct {
	caller string
	callee string // set for local calls
	target ir.Target
	file   string
	line   int
}

// A file holds what one module binds at module level.
type file struct {
	name    string
	module  string
	pkg     string // package containing the module, for relative imports
	src     []byte
	defs    map[string]bool
	classes map[string]map[string]bool
	imports map[string]string // alias -> module
	from    map[string]binding
}

type binding struct {
	module    string
	qualified string
}

// moduleName returns the dotted module name of a file and of the
// package it belongs to.
func (p *parser) moduleName(rel string) (module, pkg string) {
	parts := append([]string{p.base}, strings.Split(strings.TrimSuffix(rel, ".py"), "/")...)
	if parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
		return strings.Join(parts, "."), strings.Join(parts, ".")
	}
	return strings.Join(parts, "."), strings.Join(parts[:len(parts)-1], ".")
}

func (p *parser) parseFile(ctx context.Context, rel string, src []byte) error {
	tree, err := p.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return err
	}
	root := tree.RootNode()
	name := filepath.ToSlash(filepath.Join(p.base, rel))
	if root.HasError() {
		p.pkg.MarkFileError(name, errors.New(syntaxError(root)))
		return nil
	}
	p.pkg.Files = append(p.pkg.Files, name)

	module, pkg := p.moduleName(rel)
	f := &file{
		name:    name,
		module:  module,
		pkg:     pkg,
		src:     src,
		defs:    make(map[string]bool),
		classes: make(map[string]map[string]bool),
		imports: make(map[string]string),
		from:    make(map[string]binding),
	}
	f.collect(root)

	mod := p.declare(f, root, f.module+"."+ModuleFunc, ModuleFunc, "", 0, false)
	mod.Entrypoint = strings.HasSuffix(rel, "__main__.py")
	p.walk(f, root, scope{fn: mod, module: true})
	return nil
}

// syntaxError describes the first syntax error below n.
func syntaxError(n *sitter.Node) string {
	var bad *sitter.Node
	walk(n, func(c *sitter.Node) bool {
		if bad != nil {
			return false
		}
		if c.IsError() || c.IsMissing() {
			bad = c
			return false
		}
		return c.HasError()
	})
	if bad == nil {
		return "syntax error"
	}
	pt := bad.StartPoint()
	return fmt.Sprintf("syntax error at line %d, column %d", pt.Row+1, pt.Column+1)
}

// walk calls visit for n and, while visit returns true, its children.
func walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if !visit(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), visit)
	}
}

func (f *file) text(n *sitter.Node) string {
	return n.Content(f.src)
}

// collect records the module-level definitions and all imports of f.
func (f *file) collect(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := definition(root.NamedChild(i))
		switch n.Type() {
		case "function_definition":
			f.defs[f.text(n.ChildByFieldName("name"))] = true
		case "class_definition":
			methods := make(map[string]bool)
			body := n.ChildByFieldName("body")
			for j := 0; body != nil && j < int(body.NamedChildCount()); j++ {
				if m := definition(body.NamedChild(j)); m.Type() == "function_definition" {
					methods[f.text(m.ChildByFieldName("name"))] = true
				}
			}
			f.classes[f.text(n.ChildByFieldName("name"))] = methods
		}
	}
	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement":
			f.importedModules(n)
			return false
		case "import_from_statement":
			f.importFrom(n)
			return false
		}
		return true
	})
}

// definition unwraps a decorated definition.
func definition(n *sitter.Node) *sitter.Node {
	if n.Type() == "decorated_definition" {
		if d := n.ChildByFieldName("definition"); d != nil {
			return d
		}
	}
	return n
}

// importedModules binds the names of an import statement and returns
// the modules it imports.
func (f *file) importedModules(n *sitter.Node) []string {
	var mods []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "dotted_name":
			m := f.text(c)
			head, _, _ := strings.Cut(m, ".")
			f.imports[head] = head
			mods = append(mods, m)
		case "aliased_import":
			m := f.text(c.ChildByFieldName("name"))
			f.imports[f.text(c.ChildByFieldName("alias"))] = m
			mods = append(mods, m)
		}
	}
	return mods
}

// importFrom binds the names of a from-import statement and returns the
// module it imports from.
func (f *file) importFrom(n *sitter.Node) string {
	mn := n.ChildByFieldName("module_name")
	if mn == nil {
		return ""
	}
	module := f.text(mn)
	if mn.Type() == "relative_import" {
		module = f.relative(module)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.StartByte() == mn.StartByte() && c.EndByte() == mn.EndByte() {
			continue
		}
		var name, alias string
		switch c.Type() {
		case "dotted_name":
			name = f.text(c)
			alias = name
		case "aliased_import":
			name = f.text(c.ChildByFieldName("name"))
			alias = f.text(c.ChildByFieldName("alias"))
		default:
			continue
		}
		f.from[alias] = binding{module: module, qualified: module + "." + name}
	}
	return module
}

// relative resolves a relative module name such as "..util" against
// the package of f.
func (f *file) relative(rel string) string {
	dots := len(rel) - len(strings.TrimLeft(rel, "."))
	parts := strings.Split(f.pkg, ".")
	if up := dots - 1; up > 0 {
		if up >= len(parts) {
			parts = parts[:1]
		} else {
			parts = parts[:len(parts)-up]
		}
	}
	base := strings.Join(parts, ".")
	if rest := rel[dots:]; rest != "" {
		return base + "." + rest
	}
	return base
}

// A scope is the function code is attributed to while walking.
type scope struct {
	fn        *ir.Function
	class     string // class of fn, if fn is a method
	classBody string // class whose body is being walked
	module    bool   // walking module-level code
}

func (p *parser) declare(f *file, n *sitter.Node, qualified, name, recv string, arity int, exported bool) *ir.Function {
	fn := p.funcs[qualified]
	if fn == nil {
		fn = &ir.Function{
			QualifiedName: qualified,
			Name:          name,
			Receiver:      recv,
			Arity:         arity,
			Exported:      exported,
			File:          f.name,
			Lines:         ir.LineRange{Start: int(n.StartPoint().Row) + 1, End: int(n.EndPoint().Row) + 1},
		}
		p.funcs[qualified] = fn
	}
	return fn
}

func exported(name string) bool {
	return !strings.HasPrefix(name, "_") || (strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"))
}

func (p *parser) walk(f *file, n *sitter.Node, s scope) {
	switch n.Type() {
	case "function_definition":
		name := f.text(n.ChildByFieldName("name"))
		inner := s
		inner.module, inner.classBody = false, ""
		switch {
		case s.module:
			inner.fn = p.declare(f, n, f.module+"."+name, name, "", arity(n, false), exported(name))
		case s.classBody != "":
			inner.fn = p.declare(f, n, f.module+"."+s.classBody+"."+name, name, s.classBody,
				arity(n, true), exported(s.classBody) && exported(name))
			inner.class = s.classBody
		}
		// Nested functions belong to the enclosing function.
		p.walkChildren(f, n, inner)
		return
	case "class_definition":
		inner := s
		if s.module {
			inner.classBody = f.text(n.ChildByFieldName("name"))
			inner.module = false
		}
		p.walkChildren(f, n, inner)
		return
	case "if_statement":
		if s.module && isMainGuard(f.text(n.ChildByFieldName("condition"))) {
			s.fn.Entrypoint = true
		}
	case "import_statement":
		for _, m := range f.importedModules(n) {
			p.addCall(f, n, s.fn, "", ir.Unresolved(ir.SymbolRef{Package: m, Name: m + "." + ModuleFunc, Arity: 0}))
		}
		return
	case "import_from_statement":
		if m := f.importFrom(n); m != "" {
			p.addCall(f, n, s.fn, "", ir.Unresolved(ir.SymbolRef{Package: m, Name: m + "." + ModuleFunc, Arity: 0}))
		}
		return
	case "call":
		p.call(f, n, s)
	}
	p.walkChildren(f, n, s)
}

func (p *parser) walkChildren(f *file, n *sitter.Node, s scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p.walk(f, n.NamedChild(i), s)
	}
}

func isMainGuard(cond string) bool {
	return strings.Contains(cond, "__name__") && strings.Contains(cond, "__main__")
}

// arity returns the number of positional parameters of a function
// definition, or ir.UnknownArity if it takes defaults or variadic
// parameters. The receiver of a method is not counted.
func arity(n *sitter.Node, method bool) int {
	params := n.ChildByFieldName("parameters")
	if params == nil {
		return 0
	}
	count := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		switch params.NamedChild(i).Type() {
		case "identifier", "typed_parameter":
			count++
		case "comment":
		default:
			return ir.UnknownArity
		}
	}
	if method && count > 0 {
		count--
	}
	return count
}

// callArity returns the number of arguments of a call, or
// ir.UnknownArity if arguments are unpacked.
func callArity(n *sitter.Node) int {
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return ir.UnknownArity
	}
	count := 0
	for i := 0; i < int(args.NamedChildCount()); i++ {
		switch args.NamedChild(i).Type() {
		case "list_splat", "dictionary_splat":
			return ir.UnknownArity
		case "comment":
		default:
			count++
		}
	}
	return count
}

// dotted returns the dotted name a call expression consists of, if any.
func dotted(f *file, n *sitter.Node) ([]string, bool) {
	switch n.Type() {
	case "identifier":
		return []string{f.text(n)}, true
	case "attribute":
		obj, ok := dotted(f, n.ChildByFieldName("object"))
		if !ok {
			return nil, false
		}
		return append(obj, f.text(n.ChildByFieldName("attribute"))), true
	}
	return nil, false
}

func (p *parser) call(f *file, n *sitter.Node, s scope) {
	fun := n.ChildByFieldName("function")
	if fun == nil {
		return
	}
	ar := callArity(n)
	local := func(qualified string) {
		p.addCall(f, n, s.fn, qualified, ir.Target{})
	}
	unresolved := func(module, qualified string) {
		p.addCall(f, n, s.fn, "", ir.Unresolved(ir.SymbolRef{Package: module, Name: qualified, Arity: ar}))
	}
	dynamic := func(module string) {
		p.addCall(f, n, s.fn, "", ir.Dynamic(module))
	}

	parts, ok := dotted(f, fun)
	if !ok {
		// A computed callee, such as f()() or handlers[k](): only the
		// method name, if any, is known.
		if fun.Type() == "attribute" {
			if name := f.text(fun.ChildByFieldName("attribute")); !builtinMethods[name] {
				unresolved("", name)
			}
		}
		return
	}
	head, rest := parts[0], parts[1:]
	if len(rest) == 0 {
		switch {
		case f.defs[head]:
			local(f.module + "." + head)
		case f.classes[head] != nil:
			if f.classes[head]["__init__"] {
				local(f.module + "." + head + ".__init__")
			}
		case f.from[head].module != "":
			b := f.from[head]
			unresolved(b.module, b.qualified)
		case dynamicBuiltins[head]:
			module := ""
			if head == "getattr" {
				module = f.getattrModule(n)
			}
			dynamic(module)
		case builtins[head]:
		default:
			unresolved("", head)
		}
		return
	}

	name := strings.Join(rest, ".")
	switch {
	case head == "self" && s.class != "" && len(rest) == 1 && f.classes[s.class][rest[0]]:
		local(f.module + "." + s.class + "." + rest[0])
	case f.classes[head] != nil && len(rest) == 1 && f.classes[head][rest[0]]:
		local(f.module + "." + head + "." + rest[0])
	case f.imports[head] != "":
		module := f.imports[head]
		qualified := module + "." + name
		if qualified == "importlib.import_module" {
			dynamic("")
			return
		}
		unresolved(module, qualified)
	case f.from[head].module != "":
		b := f.from[head]
		unresolved(b.module, b.qualified+"."+name)
	default:
		last := rest[len(rest)-1]
		if !builtinMethods[last] {
			unresolved("", last)
		}
	}
}

// getattrModule returns the module of an imported name passed as the
// object of a getattr call, or "".
func (f *file) getattrModule(n *sitter.Node) string {
	args := n.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return ""
	}
	obj := args.NamedChild(0)
	if obj.Type() != "identifier" {
		return ""
	}
	name := f.text(obj)
	if m := f.imports[name]; m != "" {
		return m
	}
	return f.from[name].qualified
}

func (p *parser) addCall(f *file, n *sitter.Node, caller *ir.Function, callee string, t ir.Target) {
	p.calls = append(p.calls, call{
		caller: caller.QualifiedName,
		callee: callee,
		target: t,
		file:   f.name,
		line:   int(n.StartPoint().Row) + 1,
	})
}

func (p *parser) finish() *ir.Package {
	u := p.pkg
	names := make([]string, 0, len(p.funcs))
	for n := range p.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	ids := make(map[string]ir.LocalID, len(names))
	for i, n := range names {
		fn := p.funcs[n]
		fn.ID = ir.LocalID(i)
		ids[n] = fn.ID
		u.Functions = append(u.Functions, fn)
	}
	for _, c := range p.calls {
		site := &ir.CallSite{Caller: ids[c.caller], Target: c.target, File: c.file, Line: c.line}
		if c.callee != "" {
			if id, ok := ids[c.callee]; ok {
				site.Target = ir.Local(id)
			} else {
				// Bound at module level but never declared, such as a
				// definition the walk did not reach.
				site.Target = ir.Unresolved(ir.SymbolRef{Name: ir.BareName(c.callee), Arity: ir.UnknownArity})
				u.HasUnresolvedCalls = true
			}
		}
		u.Calls = append(u.Calls, site)
	}
	return u
}

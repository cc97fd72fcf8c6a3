// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ir defines the per-package intermediate representation that
// language front-ends produce and the engine consumes.
//
// A front-end emits, for each package, the functions it declares and the
// call sites inside them. A call site whose target the front-end could not
// resolve locally carries a SymbolRef that the symbol linker resolves later.
// A call site that dispatches through reflection, computed names or code
// evaluation is marked Dynamic instead; the engine handles such sites
// conservatively without needing to know the source language.
package ir

import (
	"fmt"
	"strings"
)

// Ecosystem names a package ecosystem, using the OSV spelling.
type Ecosystem string

const (
	Go       Ecosystem = "Go"
	NPM      Ecosystem = "npm"
	PyPI     Ecosystem = "PyPI"
	Maven    Ecosystem = "Maven"
	CratesIO Ecosystem = "crates.io"
	RubyGems Ecosystem = "RubyGems"
)

// PackageID identifies a package instance.
type PackageID struct {
	Ecosystem Ecosystem `json:"ecosystem" yaml:"ecosystem"`
	Name      string    `json:"name" yaml:"name"`
	Version   string    `json:"version,omitempty" yaml:"version,omitempty"`
}

func (id PackageID) String() string {
	if id.Version == "" {
		return fmt.Sprintf("%s:%s", id.Ecosystem, id.Name)
	}
	return fmt.Sprintf("%s:%s@%s", id.Ecosystem, id.Name, id.Version)
}

// Compare orders package ids by ecosystem, name and version.
func Compare(a, b PackageID) int {
	if c := strings.Compare(string(a.Ecosystem), string(b.Ecosystem)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.Version, b.Version)
}

// Less reports whether a sorts before b.
func Less(a, b PackageID) bool { return Compare(a, b) < 0 }

// NormalizeName returns the comparison form of a package name in eco.
// PyPI names are case-insensitive and treat '-', '_' and '.' alike;
// other ecosystems compare names exactly.
func NormalizeName(eco Ecosystem, name string) string {
	if eco == PyPI {
		r := strings.NewReplacer("_", "-", ".", "-")
		return strings.ToLower(r.Replace(name))
	}
	return name
}

// LocalID identifies a function within its package.
type LocalID int32

// LineRange is an inclusive range of source lines.
type LineRange struct {
	Start int `json:"start,omitempty"`
	End   int `json:"end,omitempty"`
}

// UnknownArity is the arity of a function or reference whose parameter
// count is not known.
const UnknownArity = -1

// Function is a function or method declared by a package.
type Function struct {
	// ID is unique within the package.
	ID LocalID `json:"id"`

	// QualifiedName is unique within the package and includes the
	// package-local path of the function, for example
	// "example.com/m/pkg.T.Method" or "requests.api.get".
	QualifiedName string `json:"qualified_name"`

	// Name is the bare function or method name.
	Name string `json:"name"`

	// Receiver is the receiver or enclosing class, if any.
	Receiver string `json:"receiver,omitempty"`

	// Arity is the number of declared parameters, or UnknownArity.
	Arity int `json:"arity"`

	File  string    `json:"file,omitempty"`
	Lines LineRange `json:"lines"`

	// Exported reports whether the function is part of the package's
	// public API.
	Exported bool `json:"exported,omitempty"`

	// Entrypoint reports whether the front-end classified the function
	// as invokable from outside analyzed code.
	Entrypoint bool `json:"entrypoint,omitempty"`

	// DynamicSink reports whether the function dispatches dynamically.
	// It is implied by any Dynamic call site in the function.
	DynamicSink bool `json:"dynamic_sink,omitempty"`
}

// SymbolRef is a reference to a function the front-end could not
// resolve locally.
type SymbolRef struct {
	// Package is the name of the package the symbol is expected in,
	// as the caller's ecosystem spells it, or "" if unknown.
	Package string `json:"package,omitempty"`

	// Name is the referenced name, either fully qualified or bare.
	Name string `json:"name,omitempty"`

	// Arity is the number of arguments at the call site, or UnknownArity.
	Arity int `json:"arity"`
}

func (r SymbolRef) String() string {
	switch {
	case r.Package == "":
		return r.Name
	case r.Name == "":
		return r.Package + ".*"
	default:
		return r.Package + ":" + r.Name
	}
}

// BareName returns the last dotted component of the referenced name.
func (r SymbolRef) BareName() string {
	return BareName(r.Name)
}

// BareName returns the last dotted component of a qualified name, after
// removing any parenthesized receiver.
func BareName(qualified string) string {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		qualified = qualified[i+1:]
	}
	return strings.Trim(qualified, "()*")
}

// TargetKind is the kind of a call target.
type TargetKind int

const (
	// TargetLocal is a call to a function of the same package.
	TargetLocal TargetKind = iota

	// TargetUnresolved is a call the symbol linker must resolve.
	TargetUnresolved

	// TargetDynamic is a call through reflection, computed dispatch or
	// code evaluation.
	TargetDynamic
)

var targetKindNames = [...]string{
	TargetLocal:      "local",
	TargetUnresolved: "unresolved",
	TargetDynamic:    "dynamic",
}

func (k TargetKind) String() string {
	if int(k) < len(targetKindNames) {
		return targetKindNames[k]
	}
	return fmt.Sprintf("TargetKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k TargetKind) MarshalText() ([]byte, error) {
	if int(k) >= len(targetKindNames) || k < 0 {
		return nil, fmt.Errorf("invalid target kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TargetKind) UnmarshalText(b []byte) error {
	for i, n := range targetKindNames {
		if n == string(b) {
			*k = TargetKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown target kind %q", b)
}

// Target is the callee of a call site: a tagged variant over local,
// unresolved and dynamic targets.
type Target struct {
	Kind TargetKind `json:"kind"`

	// Local is the callee for TargetLocal.
	Local LocalID `json:"local,omitempty"`

	// Ref is the reference for TargetUnresolved, and the statically
	// known target package (if any) for TargetDynamic.
	Ref SymbolRef `json:"ref,omitempty"`
}

// Local returns a target for a function of the caller's package.
func Local(id LocalID) Target {
	return Target{Kind: TargetLocal, Local: id}
}

// Unresolved returns a target the linker must resolve.
func Unresolved(ref SymbolRef) Target {
	return Target{Kind: TargetUnresolved, Ref: ref}
}

// Dynamic returns a dynamic target into pkg, which may be "" if the
// target package is not statically known.
func Dynamic(pkg string) Target {
	return Target{Kind: TargetDynamic, Ref: SymbolRef{Package: pkg, Arity: UnknownArity}}
}

func (t Target) String() string {
	switch t.Kind {
	case TargetLocal:
		return fmt.Sprintf("local(%d)", t.Local)
	case TargetDynamic:
		if t.Ref.Package == "" {
			return "dynamic(*)"
		}
		return fmt.Sprintf("dynamic(%s)", t.Ref.Package)
	default:
		return fmt.Sprintf("unresolved(%s)", t.Ref)
	}
}

// CallSite is a call made by a function.
type CallSite struct {
	Caller LocalID `json:"caller"`
	Target Target  `json:"target"`
	File   string  `json:"file,omitempty"`
	Line   int     `json:"line,omitempty"`
}

// Package is the intermediate representation of one package.
type Package struct {
	ID PackageID `json:"id"`

	// Files lists the source files the front-end attempted to parse.
	Files []string `json:"files,omitempty"`

	Functions []*Function `json:"functions"`
	Calls     []*CallSite `json:"calls"`

	// FileErrors lists files that could not be parsed.
	FileErrors []*ParseError `json:"file_errors,omitempty"`

	// HasUnresolvedCalls is set when some calls of the package may be
	// missing from Calls, because a file failed to parse or a reference
	// could not be linked.
	HasUnresolvedCalls bool `json:"has_unresolved_calls,omitempty"`
}

// ParseError records a source file that could not be parsed.
type ParseError struct {
	File string `json:"file"`
	Msg  string `json:"error"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// MarkFileError records that file could not be parsed. The package is
// flagged as having unresolved calls.
func (p *Package) MarkFileError(file string, err error) {
	p.FileErrors = append(p.FileErrors, &ParseError{File: file, Msg: err.Error()})
	p.HasUnresolvedCalls = true
}

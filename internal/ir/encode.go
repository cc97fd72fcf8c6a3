// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"

	"golang.org/x/vulnreach/internal/derrors"
)

// FileSuffix is the suffix of files holding an encoded Package.
const FileSuffix = ".ir.json"

// Encode writes p to w as JSON.
func Encode(w io.Writer, p *Package) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// Decode reads one JSON-encoded Package from r and validates it.
func Decode(r io.Reader) (*Package, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var p Package
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ReadDir decodes every *.ir.json file in dir of fsys, in file name order.
func ReadDir(fsys fs.FS, dir string) (_ []*Package, err error) {
	defer derrors.Wrap(&err, "ir.ReadDir(%q)", dir)

	names, err := fs.Glob(fsys, path.Join(dir, "*"+FileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	var pkgs []*Package
	for _, name := range names {
		p, err := readFile(fsys, name)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}

func readFile(fsys fs.FS, name string) (_ *Package, err error) {
	defer derrors.Wrap(&err, "%s", name)

	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// ErrInvalid is wrapped by the errors Validate returns.
var ErrInvalid = errors.New("invalid IR")

// Validate checks the invariants a front-end must uphold: function ids
// and qualified names are unique and every function has a name.
// Dangling references are not checked here; the engine drops them and
// treats the package conservatively.
func (p *Package) Validate() error {
	if p.ID.Name == "" || p.ID.Ecosystem == "" {
		return fmt.Errorf("%w: package id %v is incomplete", ErrInvalid, p.ID)
	}
	ids := make(map[LocalID]bool, len(p.Functions))
	names := make(map[string]bool, len(p.Functions))
	for i, f := range p.Functions {
		if f == nil {
			return fmt.Errorf("%w: %v: function %d is nil", ErrInvalid, p.ID, i)
		}
		if f.QualifiedName == "" {
			return fmt.Errorf("%w: %v: function %d has no qualified name", ErrInvalid, p.ID, f.ID)
		}
		if ids[f.ID] {
			return fmt.Errorf("%w: %v: duplicate function id %d", ErrInvalid, p.ID, f.ID)
		}
		if names[f.QualifiedName] {
			return fmt.Errorf("%w: %v: duplicate function %q", ErrInvalid, p.ID, f.QualifiedName)
		}
		ids[f.ID] = true
		names[f.QualifiedName] = true
	}
	for i, c := range p.Calls {
		if c == nil {
			return fmt.Errorf("%w: %v: call %d is nil", ErrInvalid, p.ID, i)
		}
	}
	return nil
}

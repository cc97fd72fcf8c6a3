// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package test holds helpers shared by the tests of the engine.
package test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
)

// WriteTree materializes a txtar archive under a fresh temporary
// directory and returns that directory. A file named "<dir>/.keep"
// creates dir without creating the file.
func WriteTree(t *testing.T, archive string) string {
	t.Helper()
	root := t.TempDir()
	ar := txtar.Parse([]byte(archive))
	for _, f := range ar.Files {
		name := filepath.Join(root, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			t.Fatal(err)
		}
		if filepath.Base(name) == ".keep" {
			continue
		}
		if err := os.WriteFile(name, f.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// ReadTxtarFile returns the contents of the txtar archive at path as a
// map from file name to data, with "\r\n" line endings normalized.
func ReadTxtarFile(t *testing.T, path string) map[string][]byte {
	t.Helper()
	ar, err := txtar.ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	files := make(map[string][]byte, len(ar.Files))
	for _, f := range ar.Files {
		files[f.Name] = []byte(strings.ReplaceAll(string(f.Data), "\r\n", "\n"))
	}
	return files
}

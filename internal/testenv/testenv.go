// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testenv reports what the test environment supports.
package testenv

import (
	"bytes"
	"os/exec"
	"runtime"
	"sync"
	"testing"
)

// HasExec reports whether the current system can start new processes.
func HasExec() bool {
	switch runtime.GOOS {
	case "ios", "js", "wasip1":
		return false
	}
	return true
}

var (
	hasGoBuildOnce sync.Once
	hasGoBuildErr  error
)

// HasGoBuild reports whether the go command and a compiler are
// available, as the package loader requires.
func HasGoBuild() error {
	hasGoBuildOnce.Do(func() {
		if !HasExec() {
			hasGoBuildErr = exec.ErrNotFound
			return
		}
		out, err := exec.Command("go", "tool", "-n", "compile").Output()
		if err != nil {
			hasGoBuildErr = err
			return
		}
		_, hasGoBuildErr = exec.LookPath(string(bytes.TrimSpace(out)))
	})
	return hasGoBuildErr
}

// NeedsGoBuild skips t if the go command cannot build packages.
func NeedsGoBuild(t testing.TB) {
	if err := HasGoBuild(); err != nil {
		t.Helper()
		t.Skipf("skipping test: 'go build' not supported on %s/%s: %v", runtime.GOOS, runtime.GOARCH, err)
	}
}

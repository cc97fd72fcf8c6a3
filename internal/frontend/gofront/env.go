// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gofront

import (
	"context"
	"encoding/json"
	"os/exec"

	"golang.org/x/tools/go/packages"
	"golang.org/x/vulnreach/internal/semver"
)

// goEnv returns the value of key in `go env`, run the way the package
// loader runs the go command for cfg.
func goEnv(ctx context.Context, cfg *packages.Config, key string) (string, error) {
	cmd := exec.CommandContext(ctx, "go", "env", "-json", key)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Env
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	env := make(map[string]string)
	if err := json.Unmarshal(out, &env); err != nil {
		return "", err
	}
	return env[key], nil
}

// stdlibVersion returns the semantic version of the standard library
// the go command for cfg builds with, such as "v1.21.3".
func stdlibVersion(ctx context.Context, cfg *packages.Config) (string, error) {
	v, err := goEnv(ctx, cfg, "GOVERSION")
	if err != nil {
		return "", err
	}
	return semver.GoTagToSemver(v), nil
}

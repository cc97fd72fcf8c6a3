// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the engine configuration.
//
// Values are taken, in increasing order of precedence, from built-in
// defaults, VULNREACH_* environment variables, and a YAML file.
// Callers may also build a Config directly and skip Load entirely.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/vulnreach/internal/derrors"
	"gopkg.in/yaml.v2"
)

const (
	envWorkers  = "VULNREACH_WORKERS"
	envMaxNodes = "VULNREACH_MAX_NODES"
	envTimeout  = "VULNREACH_TIMEOUT"
)

// DynamicScope controls what a dynamic call site with no statically known
// target package is linked to.
type DynamicScope string

const (
	// ScopeExported links unknown dynamic targets to every exported
	// function in the workspace.
	ScopeExported DynamicScope = "exported"

	// ScopeAll links unknown dynamic targets to every function in the
	// workspace, exported or not.
	ScopeAll DynamicScope = "all"
)

// LocationKind names a kind of source location searched by the resolver.
type LocationKind string

const (
	LocationVendor     LocationKind = "vendor"
	LocationGoModCache LocationKind = "gomodcache"
	LocationCache      LocationKind = "cache"
)

// Location is one entry of the resolver search order.
type Location struct {
	Kind LocationKind `yaml:"kind"`
	Path string       `yaml:"path"`
}

// Budget bounds the reachability traversal. Zero values mean unbounded.
type Budget struct {
	// MaxNodes is the maximum number of nodes the traversal may visit.
	MaxNodes int

	// MaxDuration is the wall-clock limit of the traversal.
	MaxDuration time.Duration
}

// Unbounded reports whether b places no limit on the traversal.
func (b Budget) Unbounded() bool {
	return b.MaxNodes <= 0 && b.MaxDuration <= 0
}

// LinkPolicy tunes how the symbol linker treats ambiguous references.
type LinkPolicy struct {
	// OverLink resolves an ambiguous name-only reference to every
	// candidate. When false, such references are treated as unresolved,
	// which still triggers the whole-package fallback.
	OverLink bool

	// MaxCandidates, when positive, caps the number of candidates an
	// ambiguous reference may be over-linked to; references with more
	// candidates are treated as unresolved.
	MaxCandidates int
}

// Config is the configuration for an analysis run.
type Config struct {
	// Workers is the size of the resolver and ingestion worker pools.
	Workers int

	// Budget bounds the reachability traversal.
	Budget Budget

	// Link is the symbol linker policy.
	Link LinkPolicy

	// DynamicScope is the fallback scope of dynamic call sites whose
	// target package is unknown.
	DynamicScope DynamicScope

	// Locations is the resolver search order.
	Locations []Location
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Workers:      runtime.NumCPU(),
		Link:         LinkPolicy{OverLink: true},
		DynamicScope: ScopeExported,
	}
}

// file is the YAML form of Config.
type file struct {
	Workers      int        `yaml:"workers"`
	MaxNodes     int        `yaml:"max_nodes"`
	Timeout      string     `yaml:"timeout"`
	OverLink     *bool      `yaml:"over_link"`
	MaxCands     int        `yaml:"max_candidates"`
	DynamicScope string     `yaml:"dynamic_scope"`
	Locations    []Location `yaml:"locations"`
}

// Load returns the default configuration overridden by the environment
// and, if path is not empty, by the YAML file at path.
func Load(path string) (_ *Config, err error) {
	defer derrors.Wrap(&err, "config.Load(%q)", path)

	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.applyYAML(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse returns the default configuration overridden by YAML data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.applyYAML(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(envWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envWorkers, err)
		}
		c.Workers = n
	}
	if v := getenv(envMaxNodes); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envMaxNodes, err)
		}
		c.Budget.MaxNodes = n
	}
	if v := getenv(envTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envTimeout, err)
		}
		c.Budget.MaxDuration = d
	}
	return nil
}

func (c *Config) applyYAML(data []byte) error {
	var f file
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return err
	}
	if f.Workers != 0 {
		c.Workers = f.Workers
	}
	if f.MaxNodes != 0 {
		c.Budget.MaxNodes = f.MaxNodes
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Budget.MaxDuration = d
	}
	if f.OverLink != nil {
		c.Link.OverLink = *f.OverLink
	}
	if f.MaxCands != 0 {
		c.Link.MaxCandidates = f.MaxCands
	}
	if f.DynamicScope != "" {
		c.DynamicScope = DynamicScope(f.DynamicScope)
	}
	if len(f.Locations) > 0 {
		c.Locations = f.Locations
	}
	return nil
}

var (
	// ErrInvalid is returned by Validate for an unusable configuration.
	ErrInvalid = errors.New("invalid configuration")
)

// Validate reports whether c is usable. A zero Workers value is replaced
// by the number of CPUs.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalid, c.Workers)
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Budget.MaxNodes < 0 {
		return fmt.Errorf("%w: max nodes must not be negative, got %d", ErrInvalid, c.Budget.MaxNodes)
	}
	if c.Budget.MaxDuration < 0 {
		return fmt.Errorf("%w: timeout must not be negative, got %v", ErrInvalid, c.Budget.MaxDuration)
	}
	if c.Link.MaxCandidates < 0 {
		return fmt.Errorf("%w: max candidates must not be negative, got %d", ErrInvalid, c.Link.MaxCandidates)
	}
	switch c.DynamicScope {
	case "":
		c.DynamicScope = ScopeExported
	case ScopeExported, ScopeAll:
	default:
		return fmt.Errorf("%w: unknown dynamic scope %q", ErrInvalid, c.DynamicScope)
	}
	for _, l := range c.Locations {
		switch l.Kind {
		case LocationVendor, LocationGoModCache, LocationCache:
		default:
			return fmt.Errorf("%w: unknown location kind %q", ErrInvalid, l.Kind)
		}
		if l.Path == "" {
			return fmt.Errorf("%w: %s location has no path", ErrInvalid, l.Kind)
		}
	}
	return nil
}

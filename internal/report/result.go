// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report contains the output structs of the engine and the
// interface for consuming them as a stream.
package report

import (
	"fmt"
	"time"

	"golang.org/x/vulnreach/internal/ir"
)

const (
	// ProtocolVersion is the current protocol version this file implements
	ProtocolVersion = "v0.1.0"

	// EngineName is the name reported in Config messages.
	EngineName = "vulnreach"
)

// Message is an entry in the output stream. It will always have exactly one
// field filled in.
type Message struct {
	Config   *Config   `json:"config,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Verdict  *Verdict  `json:"verdict,omitempty"`
}

// Config describes the analysis that produced the verdicts of a stream.
type Config struct {
	// ProtocolVersion specifies the version of the JSON protocol.
	ProtocolVersion string `json:"protocol_version,omitempty"`

	// EngineName is the name of the tool.
	EngineName string `json:"engine_name,omitempty"`

	Workers     int    `json:"workers,omitempty"`
	MaxNodes    int    `json:"max_nodes,omitempty"`
	MaxDuration string `json:"max_duration,omitempty"`
	OverLink    bool   `json:"over_link"`

	// Packages is the number of packages analyzed.
	Packages int `json:"packages"`

	// GraphFingerprint identifies the call graph the verdicts were
	// computed on. Identical inputs produce identical fingerprints.
	GraphFingerprint string `json:"graph_fingerprint,omitempty"`
}

type Progress struct {
	// A time stamp for the message.
	Timestamp *time.Time `json:"time,omitempty"`

	// Message is the progress message.
	Message string `json:"message,omitempty"`
}

// Confidence is the confidence of a verdict.
type Confidence int

const (
	// High means the verdict rests on a complete analysis of every
	// package involved and on statically linked calls only.
	High Confidence = iota

	// Degraded means the verdict relies on approximations: over-linked,
	// dynamic or fallback edges, or packages that were not completely
	// analyzed.
	Degraded

	// Low means the vulnerability is reported reachable only because it
	// could not be shown unreachable: the traversal ran out of budget or
	// the package could not be analyzed at all.
	Low
)

var confidenceNames = [...]string{
	High:     "high",
	Degraded: "degraded",
	Low:      "low",
}

func (c Confidence) String() string {
	if c >= 0 && int(c) < len(confidenceNames) {
		return confidenceNames[c]
	}
	return fmt.Sprintf("Confidence(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(confidenceNames) {
		return nil, fmt.Errorf("invalid confidence %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Confidence) UnmarshalText(b []byte) error {
	for i, n := range confidenceNames {
		if n == string(b) {
			*c = Confidence(i)
			return nil
		}
	}
	return fmt.Errorf("unknown confidence %q", b)
}

// Verdict is the reachability verdict for one advisory and one affected
// package instance.
type Verdict struct {
	// Advisory is the id of the advisory.
	Advisory string `json:"advisory"`

	// Package is the affected package instance.
	Package ir.PackageID `json:"package"`

	Reachable  bool       `json:"reachable"`
	Confidence Confidence `json:"confidence"`

	// Symbol is the qualified name of the vulnerable function the
	// witness ends in, if any.
	Symbol string `json:"symbol,omitempty"`

	// Witness is the call chain from an entry point to Symbol, as node
	// ids of the call graph. It is empty for unreachable verdicts and
	// for verdicts that are reachable only by default.
	Witness []int32 `json:"witness,omitempty"`

	// Trace describes each node of Witness, in the same order.
	Trace []*Frame `json:"trace,omitempty"`

	// Reason explains a confidence other than High.
	Reason string `json:"reason,omitempty"`
}

// Frame represents an entry in a verdict trace.
type Frame struct {
	// Package is the package containing this function.
	Package ir.PackageID `json:"package"`

	// Function is the qualified name of the function.
	Function string `json:"function"`

	// Receiver is the receiver type or class if the function is a method.
	Receiver string `json:"receiver,omitempty"`

	// Position is the location of the function, if known.
	Position *Position `json:"position,omitempty"`

	// Edge is how the call into this frame was linked. It is empty for
	// the first frame.
	Edge string `json:"edge,omitempty"`

	// Synthetic marks frames standing for code that was not analyzed.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Position is a source location.
type Position struct {
	Filename string `json:"filename,omitempty"`
	Line     int    `json:"line"`
}

func (f *Frame) String() string {
	if f.Position == nil {
		return f.Function
	}
	return fmt.Sprintf("%s (%s:%d)", f.Function, f.Position.Filename, f.Position.Line)
}

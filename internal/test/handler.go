// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package test

import (
	"sort"

	"golang.org/x/vulnreach/internal/ir"
	"golang.org/x/vulnreach/internal/report"
)

// MockHandler implements report.Handler by recording every message.
//
// For use in tests.
type MockHandler struct {
	ConfigMessages   []*report.Config
	ProgressMessages []*report.Progress
	VerdictMessages  []*report.Verdict
}

func NewMockHandler() *MockHandler {
	return &MockHandler{}
}

func (h *MockHandler) Config(config *report.Config) error {
	h.ConfigMessages = append(h.ConfigMessages, config)
	return nil
}

func (h *MockHandler) Progress(progress *report.Progress) error {
	h.ProgressMessages = append(h.ProgressMessages, progress)
	return nil
}

func (h *MockHandler) Verdict(verdict *report.Verdict) error {
	h.VerdictMessages = append(h.VerdictMessages, verdict)
	return nil
}

// Sort orders the recorded verdicts by advisory and package.
func (h *MockHandler) Sort() {
	sort.SliceStable(h.VerdictMessages, func(i, j int) bool {
		a, b := h.VerdictMessages[i], h.VerdictMessages[j]
		if a.Advisory != b.Advisory {
			return a.Advisory < b.Advisory
		}
		return ir.Less(a.Package, b.Package)
	})
}

// Write replays the recorded messages, with verdicts sorted, to another
// handler.
func (h *MockHandler) Write(to report.Handler) error {
	h.Sort()
	for _, config := range h.ConfigMessages {
		if err := to.Config(config); err != nil {
			return err
		}
	}
	for _, progress := range h.ProgressMessages {
		if err := to.Progress(progress); err != nil {
			return err
		}
	}
	for _, verdict := range h.VerdictMessages {
		if err := to.Verdict(verdict); err != nil {
			return err
		}
	}
	return nil
}

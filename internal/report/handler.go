// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"encoding/json"
	"io"
)

// Handler handles messages to be presented in an analysis output stream.
type Handler interface {
	// Config communicates introductory message to the user.
	Config(config *Config) error

	// Progress is called to display a progress message.
	Progress(progress *Progress) error

	// Verdict is called for each verdict, in verdict order.
	Verdict(verdict *Verdict) error
}

// HandleJSON reads the json from the supplied stream and hands the decoded
// output to the handler.
func HandleJSON(from io.Reader, to Handler) error {
	dec := json.NewDecoder(from)
	for dec.More() {
		msg := Message{}
		// decode the next message in the stream
		if err := dec.Decode(&msg); err != nil {
			return err
		}
		// dispatch the message
		var err error
		if msg.Config != nil {
			err = to.Config(msg.Config)
		}
		if msg.Progress != nil {
			err = to.Progress(msg.Progress)
		}
		if msg.Verdict != nil {
			err = to.Verdict(msg.Verdict)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Emit sends the verdicts to h, preceded by cfg if it is not nil.
func Emit(h Handler, cfg *Config, verdicts []*Verdict) error {
	if cfg != nil {
		if err := h.Config(cfg); err != nil {
			return err
		}
	}
	for _, v := range verdicts {
		if err := h.Verdict(v); err != nil {
			return err
		}
	}
	return nil
}

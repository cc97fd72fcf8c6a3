// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"encoding/json"
	"io"
)

type jsonHandler struct {
	enc *json.Encoder
}

// NewJSONHandler returns a handler that writes messages as indented json,
// one value per message.
func NewJSONHandler(w io.Writer) Handler {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &jsonHandler{enc: enc}
}

func (o *jsonHandler) Config(config *Config) error {
	return o.enc.Encode(Message{Config: config})
}

func (o *jsonHandler) Progress(progress *Progress) error {
	return o.enc.Encode(Message{Progress: progress})
}

func (o *jsonHandler) Verdict(verdict *Verdict) error {
	return o.enc.Encode(Message{Verdict: verdict})
}

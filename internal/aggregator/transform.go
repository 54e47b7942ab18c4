// Copyright 2026 The Stackpilot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aggregator

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/stackpilot/stackpilot/internal/log"
)

// Markers used by children that wrap one logical message across several
// physical lines. The transform stage reassembles such messages into a
// single forwarded line with the framing removed.
const (
	openMarker  = "--- MESSAGE ---"
	closeMarker = "--- END ---"

	// continuationSuffix marks a line whose message continues on the
	// next line, shell-style.
	continuationSuffix = ` \`
)

// reassembler is the pipeline's second stage: it consumes tagged lines,
// rewrites known multi-line wrapped message patterns into single lines,
// and writes them to the diagnostic stream as "source | text".
//
// Wrapped-message state is kept per source, so interleaved output from
// different files does not corrupt a message.
type reassembler struct {
	w      io.Writer
	logger *slog.Logger

	open   map[string]bool
	blocks map[string][]string
	cont   map[string][]string

	doneCh chan struct{}
}

func newReassembler(w io.Writer, logger *slog.Logger) *reassembler {
	return &reassembler{
		w:      w,
		logger: log.WithComponent(logger, "transform"),
		open:   make(map[string]bool),
		blocks: make(map[string][]string),
		cont:   make(map[string][]string),
		doneCh: make(chan struct{}),
	}
}

// run consumes lines until the input closes, then flushes anything still
// buffered. All state is owned by this goroutine.
func (r *reassembler) run(in <-chan line) {
	defer close(r.doneCh)

	for ln := range in {
		r.process(ln)
	}
	r.flush()
}

func (r *reassembler) process(ln line) {
	src, text := ln.source, ln.text

	switch {
	case text == openMarker:
		if r.open[src] {
			// A new message opened before the previous one closed:
			// the previous one was truncated. Forward what we have,
			// body preserved verbatim.
			r.forward(src, strings.Join(r.blocks[src], " "))
		}
		r.open[src] = true
		r.blocks[src] = nil

	case r.open[src] && text == closeMarker:
		r.forward(src, strings.Join(r.blocks[src], " "))
		r.open[src] = false
		r.blocks[src] = nil

	case r.open[src]:
		r.blocks[src] = append(r.blocks[src], text)

	case strings.HasSuffix(text, continuationSuffix):
		r.cont[src] = append(r.cont[src], strings.TrimSuffix(text, continuationSuffix))

	case len(r.cont[src]) > 0:
		parts := append(r.cont[src], text)
		r.forward(src, strings.Join(parts, " "))
		delete(r.cont, src)

	default:
		r.forward(src, text)
	}
}

// flush forwards buffered message fragments at end of stream, so a
// message truncated by shutdown is not silently dropped.
func (r *reassembler) flush() {
	for src, isOpen := range r.open {
		if isOpen {
			r.forward(src, strings.Join(r.blocks[src], " "))
			r.open[src] = false
			r.blocks[src] = nil
		}
	}
	for src, parts := range r.cont {
		r.forward(src, strings.Join(parts, " "))
		delete(r.cont, src)
	}
}

func (r *reassembler) forward(src, text string) {
	if text == "" {
		return
	}
	if _, err := fmt.Fprintf(r.w, "%s | %s\n", src, text); err != nil {
		r.logger.Warn("cannot write to diagnostic stream", log.Error(err))
	}
	linesForwarded.Inc()
}

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
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// runThrough feeds lines through a reassembler and returns everything it
// wrote, including the end-of-stream flush.
func runThrough(t *testing.T, lines ...line) string {
	t.Helper()
	var buf bytes.Buffer
	r := newReassembler(&buf, slog.New(slog.NewTextHandler(io.Discard, nil)))

	in := make(chan line, len(lines))
	for _, ln := range lines {
		in <- ln
	}
	close(in)
	r.run(in)

	return buf.String()
}

func TestReassemblerPassthrough(t *testing.T) {
	out := runThrough(t,
		line{source: "app.log", text: "listening on :4000"},
		line{source: "web.log", text: "compiled assets"},
	)

	assert.Equal(t, "app.log | listening on :4000\nweb.log | compiled assets\n", out)
}

func TestReassemblerJoinsMarkerBlock(t *testing.T) {
	out := runThrough(t,
		line{source: "app.log", text: openMarker},
		line{source: "app.log", text: "connection refused"},
		line{source: "app.log", text: "retrying in 5s"},
		line{source: "app.log", text: closeMarker},
	)

	assert.Equal(t, "app.log | connection refused retrying in 5s\n", out)
	assert.NotContains(t, out, openMarker, "framing must be removed")
}

func TestReassemblerTruncatedBlockAtEndOfStream(t *testing.T) {
	// Opening marker with no matching close before the stream ends: the
	// body is forwarded as one line, truncation marker preserved.
	out := runThrough(t,
		line{source: "app.log", text: openMarker},
		line{source: "app.log", text: "half a stack trace [truncated]"},
	)

	assert.Equal(t, "app.log | half a stack trace [truncated]\n", out)
}

func TestReassemblerTruncatedBlockByNextOpen(t *testing.T) {
	out := runThrough(t,
		line{source: "app.log", text: openMarker},
		line{source: "app.log", text: "first message cut short"},
		line{source: "app.log", text: openMarker},
		line{source: "app.log", text: "second message"},
		line{source: "app.log", text: closeMarker},
	)

	assert.Equal(t,
		"app.log | first message cut short\napp.log | second message\n",
		out)
}

func TestReassemblerBackslashContinuation(t *testing.T) {
	out := runThrough(t,
		line{source: "web.log", text: `GET /assets/app.js \`},
		line{source: "web.log", text: `200 OK \`},
		line{source: "web.log", text: "12ms"},
	)

	assert.Equal(t, "web.log | GET /assets/app.js 200 OK 12ms\n", out)
}

func TestReassemblerContinuationFlushedAtEndOfStream(t *testing.T) {
	out := runThrough(t,
		line{source: "web.log", text: `dangling \`},
	)

	assert.Equal(t, "web.log | dangling\n", out)
}

func TestReassemblerInterleavedSources(t *testing.T) {
	// A block from one file must not absorb lines from another.
	out := runThrough(t,
		line{source: "app.log", text: openMarker},
		line{source: "app.log", text: "slow query"},
		line{source: "web.log", text: "GET / 200"},
		line{source: "app.log", text: "took 3s"},
		line{source: "app.log", text: closeMarker},
	)

	assert.Contains(t, out, "web.log | GET / 200\n")
	assert.Contains(t, out, "app.log | slow query took 3s\n")
}

func TestReassemblerDropsEmptyLines(t *testing.T) {
	out := runThrough(t,
		line{source: "app.log", text: ""},
		line{source: "app.log", text: "real"},
	)

	assert.Equal(t, "app.log | real\n", out)
}

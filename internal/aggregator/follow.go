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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/stackpilot/stackpilot/internal/log"
)

// line is one complete log line tagged with the file it came from.
type line struct {
	source string
	text   string
}

// follower is the pipeline's first stage: it watches a fixed set of log
// files and emits appended lines. Files that do not exist yet are
// created empty before following starts. Following begins at the current
// end of each file; truncation and rotation reset to the start.
type follower struct {
	paths   []string // absolute, deduplicated
	watcher *fsnotify.Watcher
	out     chan<- line
	logger  *slog.Logger

	// offsets and partial are touched only by the run goroutine.
	offsets map[string]int64
	partial map[string][]byte

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// newFollower prepares the watch: missing files (and their directories)
// are created, and the containing directories are registered with
// fsnotify so that rotation (remove then re-create) is observed.
func newFollower(paths []string, out chan<- line, logger *slog.Logger) (*follower, error) {
	f := &follower{
		out:     out,
		logger:  log.WithComponent(logger, "follow"),
		offsets: make(map[string]int64),
		partial: make(map[string][]byte),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true

		if err := ensureFile(abs); err != nil {
			return nil, err
		}
		fi, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", abs, err)
		}
		f.paths = append(f.paths, abs)
		// Follow from the current end: only lines appended after
		// startup are forwarded.
		f.offsets[abs] = fi.Size()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	dirs := make(map[string]bool)
	for _, p := range f.paths {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	f.watcher = watcher
	return f, nil
}

// ensureFile creates path (and its directory) if absent.
func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	return fh.Close()
}

// run is the stage's goroutine. It returns when stopped or when the
// watcher's channels close underneath it.
func (f *follower) run() {
	defer close(f.doneCh)

	f.logger.Debug("follow stage started", "files", len(f.paths))
	for {
		select {
		case <-f.stopCh:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				f.logger.Warn("watcher event channel closed")
				return
			}
			f.handleEvent(ev)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Error("watch error", log.Error(err))
		}
	}
}

func (f *follower) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if _, tracked := f.offsets[path]; !tracked {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Write), ev.Op.Has(fsnotify.Create):
		f.readNew(path)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		f.logger.Debug("file rotated", log.PathKey, path)
		rotationsDetected.Inc()
		f.offsets[path] = 0
		delete(f.partial, path)
	}
}

// readNew forwards everything appended to path since the last read.
func (f *follower) readNew(path string) {
	fi, err := os.Stat(path)
	if err != nil {
		// Removed between event and read; the remove event resets us.
		return
	}

	off := f.offsets[path]
	if fi.Size() < off {
		f.logger.Debug("file truncated, following from start", log.PathKey, path)
		truncationsDetected.Inc()
		off = 0
		delete(f.partial, path)
	}
	if fi.Size() == off {
		f.offsets[path] = off
		return
	}

	fh, err := os.Open(path)
	if err != nil {
		f.logger.Warn("cannot open followed file", log.PathKey, path, log.Error(err))
		return
	}
	defer fh.Close()

	if _, err := fh.Seek(off, io.SeekStart); err != nil {
		f.logger.Warn("cannot seek followed file", log.PathKey, path, log.Error(err))
		return
	}
	data, err := io.ReadAll(fh)
	if err != nil {
		f.logger.Warn("cannot read followed file", log.PathKey, path, log.Error(err))
		return
	}

	f.offsets[path] = off + int64(len(data))
	f.emit(path, data)
}

// emit splits data into complete lines and sends them downstream. A
// trailing fragment with no newline is held until it completes.
func (f *follower) emit(path string, data []byte) {
	buf := append(f.partial[path], data...)
	source := filepath.Base(path)

	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		text := string(bytes.TrimSuffix(buf[:idx], []byte("\r")))
		buf = buf[idx+1:]

		select {
		case f.out <- line{source: source, text: text}:
			linesFollowed.Inc()
		case <-f.stopCh:
			return
		}
	}
	f.partial[path] = buf
}

// stop halts the stage: no further reads happen once it returns.
func (f *follower) stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
		<-f.doneCh
		f.watcher.Close()
	})
}

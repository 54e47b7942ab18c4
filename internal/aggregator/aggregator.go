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

// Package aggregator implements the log-aggregator task: a two-stage
// in-process pipeline that follows a set of log files and forwards
// their lines, reformatted, to the supervisor's diagnostic stream.
//
// Unlike the other supervised tasks, the aggregator's child is not a
// single OS process. Its stages are enumerated explicitly and stopped
// individually during termination: the follow stage first, so no more
// data enters the pipeline, then the transform stage once buffered
// lines have flushed through. Stopping only the first stage is never
// assumed to end the second.
package aggregator

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/stackpilot/stackpilot/internal/log"
	"github.com/stackpilot/stackpilot/internal/supervisor"
)

// lineBuffer bounds in-flight lines between the stages.
const lineBuffer = 256

// DefaultName is the aggregator's task name when the config does not
// set one.
const DefaultName = "logs"

// Config describes what the aggregator follows and where it writes.
type Config struct {
	// Name is the task name. Defaults to DefaultName.
	Name string

	// Paths are the log files to follow. Missing files are created
	// empty before following starts.
	Paths []string

	// Out receives the forwarded lines. Defaults to os.Stderr, the
	// supervisor's diagnostic stream.
	Out io.Writer
}

// stage is one live stage of the pipeline, stoppable on its own.
type stage struct {
	name string
	stop func()
}

// Aggregator is a supervisor.Task whose child is the follow+transform
// pipeline.
type Aggregator struct {
	cfg    Config
	exits  *supervisor.ExitChannel
	logger *slog.Logger

	mu    sync.Mutex
	state supervisor.TaskState

	lines     chan line
	follow    *follower
	transform *reassembler
	stages    []stage

	closeOnce sync.Once
}

// New creates an aggregator task reporting on exits.
func New(cfg Config, exits *supervisor.ExitChannel, logger *slog.Logger) *Aggregator {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}
	return &Aggregator{
		cfg:    cfg,
		exits:  exits,
		logger: logger.With(log.TaskKey, cfg.Name),
		state:  supervisor.StateSpawned,
	}
}

// Name returns the task name.
func (a *Aggregator) Name() string { return a.cfg.Name }

// State reports the current lifecycle state.
func (a *Aggregator) State() supervisor.TaskState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start creates missing log files, wires the two stages together and
// launches them, then begins monitoring for pipeline completion.
func (a *Aggregator) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != supervisor.StateSpawned {
		return &supervisor.SpawnError{Task: a.cfg.Name, Err: supervisor.ErrAlreadyStarted}
	}

	a.lines = make(chan line, lineBuffer)
	follow, err := newFollower(a.cfg.Paths, a.lines, a.logger)
	if err != nil {
		return &supervisor.SpawnError{Task: a.cfg.Name, Err: err}
	}
	a.follow = follow
	a.transform = newReassembler(a.cfg.Out, a.logger)

	// Termination order is the slice order.
	a.stages = []stage{
		{name: "follow", stop: a.follow.stop},
		{name: "transform", stop: a.stopTransform},
	}

	go a.follow.run()
	go a.transform.run(a.lines)

	a.state = supervisor.StateRunning
	a.logger.Info("log aggregator started", "files", len(a.cfg.Paths))

	go a.monitor()
	return nil
}

// monitor waits for the pipeline to finish and reports exactly once.
// The pipeline's exit is defined by its last stage: the transform
// finishing its flush, so nothing buffered is lost.
func (a *Aggregator) monitor() {
	<-a.follow.doneCh
	a.closeLines()
	<-a.transform.doneCh

	a.mu.Lock()
	a.state = supervisor.StateExited
	a.mu.Unlock()

	a.logger.Info("log aggregator exited")
	a.exits.Send(supervisor.ExitEvent{TaskName: a.cfg.Name})
}

// RequestTermination stops every live stage, in order. Idempotent.
func (a *Aggregator) RequestTermination() {
	a.mu.Lock()
	if a.state != supervisor.StateRunning {
		a.mu.Unlock()
		return
	}
	a.state = supervisor.StateTerminating
	stages := a.stages
	a.mu.Unlock()

	for _, s := range stages {
		a.logger.Debug("stopping stage", "stage", s.name)
		s.stop()
	}
}

// stopTransform signals end-of-input and waits for the flush.
func (a *Aggregator) stopTransform() {
	a.closeLines()
	<-a.transform.doneCh
}

func (a *Aggregator) closeLines() {
	a.closeOnce.Do(func() { close(a.lines) })
}

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

// Package supervisor launches a set of long-running child processes and
// guarantees coordinated teardown: the first child to exit, or a
// terminate signal, tears the whole group down in bounded time.
//
// There is no restart logic. A child exiting while the group is running
// is always fatal to the group; recovery is the job of whatever launched
// the supervisor.
package supervisor

import (
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stackpilot/stackpilot/internal/log"
)

// Phase is the supervisor's lifecycle phase.
type Phase int32

const (
	// PhaseInitializing: tasks built, nothing started.
	PhaseInitializing Phase = iota
	// PhaseRunning: every task started successfully.
	PhaseRunning
	// PhaseShuttingDown: teardown in progress. Entered exactly once.
	PhaseShuttingDown
	// PhaseTerminated: teardown finished.
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseShuttingDown:
		return "shutting_down"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DefaultGracePeriod bounds how long shutdown waits for children to
// confirm termination before the supervisor exits regardless.
const DefaultGracePeriod = 5 * time.Second

// Status describes what ended a supervisor run. Exactly one of the
// fields is set.
type Status struct {
	// TriggerTask is the name of the task whose exit triggered
	// shutdown, if a task exit was the trigger.
	TriggerTask string

	// Signal is the terminate signal that triggered shutdown, if any.
	Signal os.Signal

	// Err is the spawn error that aborted startup, if any.
	Err error
}

func (s Status) cause() string {
	switch {
	case s.Err != nil:
		return causeSpawnFailure
	case s.Signal != nil:
		return causeSignal
	default:
		return causeTaskExit
	}
}

// Options tunes a Supervisor.
type Options struct {
	// GracePeriod overrides DefaultGracePeriod.
	GracePeriod time.Duration

	// Port is the application server's port; recorded for diagnostics
	// only, the supervisor does not open it.
	Port int

	// Logger receives all supervisor narration. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Policy overrides the terminal-detected signal policy (used by
	// tests).
	Policy *SignalPolicy

	// RunID overrides the generated run identifier.
	RunID string
}

// Supervisor owns an ordered set of tasks and the shutdown policy.
// Startup is strictly ordered; teardown signals every task in parallel.
type Supervisor struct {
	tasks  []Task
	exits  *ExitChannel
	policy *SignalPolicy
	logger *slog.Logger

	grace time.Duration
	port  int
	runID string

	phase        atomic.Int32
	shuttingDown atomic.Bool

	// started holds the tasks whose Start succeeded, in start order.
	// Only the Run goroutine appends; shutdown reads after the last
	// append.
	started []Task
}

// New builds a Supervisor over tasks, which must all report on exits.
func New(tasks []Task, exits *ExitChannel, opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Policy == nil {
		opts.Policy = NewSignalPolicy(opts.Logger)
	}

	return &Supervisor{
		tasks:  tasks,
		exits:  exits,
		policy: opts.Policy,
		logger: log.WithRunID(opts.Logger, opts.RunID),
		grace:  opts.GracePeriod,
		port:   opts.Port,
		runID:  opts.RunID,
	}
}

// Phase reports the current lifecycle phase.
func (s *Supervisor) Phase() Phase {
	return Phase(s.phase.Load())
}

// RunID returns the run identifier attached to this supervisor's logs.
func (s *Supervisor) RunID() string { return s.runID }

// Run starts every task in order, blocks until the first task exit or a
// terminate signal, tears everything down, and reports what happened.
// Signals are only acted on once all tasks are running; a signal that
// arrives during startup is held and handled immediately afterwards.
func (s *Supervisor) Run() Status {
	sigs := s.policy.Install()
	defer s.policy.Uninstall()

	s.logger.Info("starting tasks",
		"count", len(s.tasks),
		"port", s.port,
		"interactive", s.policy.Interactive())

	for _, t := range s.tasks {
		if err := t.Start(); err != nil {
			s.logger.Error("task failed to start",
				log.TaskKey, t.Name(), log.Error(err))
			st := Status{Err: err}
			s.shutdown(st)
			return st
		}
		s.started = append(s.started, t)

		// A settling task gets a pause before its dependents launch.
		if sd, ok := t.(settler); ok && sd.Settle() > 0 {
			s.logger.Debug("settling",
				log.TaskKey, t.Name(), "delay", sd.Settle())
			time.Sleep(sd.Settle())
		}
	}

	s.phase.Store(int32(PhaseRunning))
	s.logger.Info("all tasks running")

	var st Status
	select {
	case sig := <-sigs:
		s.logger.Info("terminate signal received", log.SignalKey, sig.String())
		st = Status{Signal: sig}
	case ev := <-s.exits.Events():
		s.logger.Error("process exited unexpectedly", log.TaskKey, ev.TaskName)
		st = Status{TriggerTask: ev.TaskName}
	}

	s.shutdown(st)
	return st
}

// shutdown tears down every running task and waits, bounded by the
// grace period, for their exit confirmations. Idempotent: concurrent
// triggers collapse into a single entry.
func (s *Supervisor) shutdown(st Status) {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	s.phase.Store(int32(PhaseShuttingDown))
	shutdowns.WithLabelValues(st.cause()).Inc()
	s.logger.Info("shutting down", "cause", st.cause())

	// Teardown has no ordering dependencies; signal everyone at once.
	for _, t := range s.started {
		if t.State() == StateRunning {
			go t.RequestTermination()
		}
	}

	// The triggering task (if any) has already reported.
	outstanding := len(s.started)
	if st.TriggerTask != "" {
		outstanding--
	}

	confirmed := s.exits.Drain(outstanding, s.grace)
	if len(confirmed) < outstanding {
		for _, name := range s.stragglers(st, confirmed) {
			shutdownStragglers.Inc()
			s.logger.Warn("task did not confirm exit within grace period",
				log.TaskKey, name, "grace_period", s.grace)
		}
	}

	s.phase.Store(int32(PhaseTerminated))
	s.logger.Info("supervisor terminated")
}

// stragglers names the started tasks that never confirmed exit.
func (s *Supervisor) stragglers(st Status, confirmed []ExitEvent) []string {
	seen := map[string]bool{st.TriggerTask: true}
	for _, ev := range confirmed {
		seen[ev.TaskName] = true
	}
	var names []string
	for _, t := range s.started {
		if !seen[t.Name()] {
			names = append(names, t.Name())
		}
	}
	return names
}

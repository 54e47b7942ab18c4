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

package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/stackpilot/stackpilot/internal/log"
)

// LaunchSpec describes how to start one supervised child process. It is
// produced by the configuration layer and treated as opaque here: the
// supervisor does not care what the child does.
type LaunchSpec struct {
	// Name uniquely identifies the task within a run. It is used for
	// diagnostics and exit reporting.
	Name string

	// Command is the argv to execute. Command[0] is the binary.
	Command []string

	// Env holds additional environment variables for the child. The
	// supervisor's own environment is inherited and extended.
	Env map[string]string

	// Settle is an optional pause applied after this task starts before
	// the next task in the startup order is launched. Used when a later
	// task depends on this one being ready to accept traffic.
	Settle time.Duration
}

// TaskState is the lifecycle state of a task.
type TaskState int32

const (
	// StateSpawned is the initial state: the task exists but no child
	// process has been created.
	StateSpawned TaskState = iota
	// StateRunning means the child process was created successfully and
	// is being monitored.
	StateRunning
	// StateTerminating means the supervisor has requested shutdown and
	// the child has been signaled.
	StateTerminating
	// StateExited means the child has finished. Terminal; tasks are
	// never restarted.
	StateExited
)

func (s TaskState) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Task is a supervised child. Implementations wrap a single OS process
// (ProcTask) or a multi-stage pipeline (the log aggregator).
//
// Once Start succeeds, exactly one ExitEvent for the task will eventually
// appear on the ExitChannel it was constructed with, with no further
// interaction required.
type Task interface {
	// Name returns the task's unique name.
	Name() string

	// Start creates the underlying process(es) and begins monitoring.
	// On failure the task's state is unchanged and a *SpawnError is
	// returned.
	Start() error

	// RequestTermination asks the child to stop. Idempotent; a no-op
	// unless the task is running. The request is advisory: children
	// that ignore it are reclaimed when the supervisor itself exits.
	RequestTermination()

	// State reports the current lifecycle state.
	State() TaskState
}

// settler is implemented by tasks that want a pause after they start
// before the next task is launched.
type settler interface {
	Settle() time.Duration
}

// ProcTask supervises a single OS process launched from a LaunchSpec.
// The child runs in its own process group so that termination reaches
// any subprocesses it spawned.
type ProcTask struct {
	spec   LaunchSpec
	exits  *ExitChannel
	logger *slog.Logger

	mu    sync.Mutex
	state TaskState
	cmd   *exec.Cmd
}

// NewProcTask creates a task for spec, reporting its eventual exit on
// exits.
func NewProcTask(spec LaunchSpec, exits *ExitChannel, logger *slog.Logger) *ProcTask {
	return &ProcTask{
		spec:   spec,
		exits:  exits,
		logger: logger.With(log.TaskKey, spec.Name),
		state:  StateSpawned,
	}
}

// Name returns the task name from the launch spec.
func (t *ProcTask) Name() string { return t.spec.Name }

// Settle returns the post-start delay from the launch spec.
func (t *ProcTask) Settle() time.Duration { return t.spec.Settle }

// State reports the current lifecycle state.
func (t *ProcTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start launches the child process and begins the monitor goroutine.
func (t *ProcTask) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateSpawned {
		return &SpawnError{Task: t.spec.Name, Err: ErrAlreadyStarted}
	}
	if len(t.spec.Command) == 0 {
		return &SpawnError{Task: t.spec.Name, Err: ErrEmptyCommand}
	}

	cmd := exec.Command(t.spec.Command[0], t.spec.Command[1:]...)
	cmd.Env = buildEnv(t.spec.Env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return &SpawnError{Task: t.spec.Name, Err: err}
	}

	t.cmd = cmd
	t.state = StateRunning
	tasksStarted.Inc()
	t.logger.Info("child started", log.PIDKey, cmd.Process.Pid)

	go t.monitor()
	return nil
}

// monitor waits for the child to exit and reports exactly once,
// regardless of how the exit happened.
func (t *ProcTask) monitor() {
	err := t.cmd.Wait()

	t.mu.Lock()
	requested := t.state == StateTerminating
	t.state = StateExited
	disposition := exitDisposition(t.cmd.ProcessState)
	t.mu.Unlock()

	if requested || err == nil {
		t.logger.Info("child exited", "disposition", disposition)
	} else {
		t.logger.Warn("child exited", "disposition", disposition, log.Error(err))
	}

	taskExits.WithLabelValues(t.spec.Name).Inc()
	t.exits.Send(ExitEvent{TaskName: t.spec.Name})
}

// RequestTermination signals the child's process group to stop.
func (t *ProcTask) RequestTermination() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning {
		return
	}
	t.state = StateTerminating
	t.logger.Debug("requesting termination")

	if err := terminateProcessGroup(t.cmd.Process); err != nil {
		t.logger.Warn("failed to signal child", log.Error(err))
	}
}

// buildEnv merges extra variables over the inherited environment in a
// deterministic order.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return env
}

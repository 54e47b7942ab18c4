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
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTask is a Task whose lifecycle the test drives directly.
type stubTask struct {
	name       string
	exits      *ExitChannel
	startErr   error
	settle     time.Duration
	exitOnTerm bool

	mu        sync.Mutex
	state     TaskState
	started   bool
	startedAt time.Time
	termed    int
}

func (t *stubTask) Name() string { return t.name }

func (t *stubTask) Settle() time.Duration { return t.settle }

func (t *stubTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *stubTask) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startErr != nil {
		return &SpawnError{Task: t.name, Err: t.startErr}
	}
	t.started = true
	t.startedAt = time.Now()
	t.state = StateRunning
	return nil
}

func (t *stubTask) RequestTermination() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.termed++
	if t.state != StateRunning {
		return
	}
	t.state = StateTerminating
	if t.exitOnTerm {
		t.state = StateExited
		t.exits.Send(ExitEvent{TaskName: t.name})
	}
}

// crash simulates the child exiting on its own.
func (t *stubTask) crash() {
	t.mu.Lock()
	t.state = StateExited
	t.mu.Unlock()
	t.exits.Send(ExitEvent{TaskName: t.name})
}

func (t *stubTask) terminations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.termed
}

func newTestSupervisor(t *testing.T, tasks []Task, exits *ExitChannel, grace time.Duration) *Supervisor {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(tasks, exits, Options{
		GracePeriod: grace,
		Logger:      logger,
		Policy:      newSignalPolicy(false, logger),
	})
}

func TestSupervisorFirstExitTriggersShutdown(t *testing.T) {
	exits := NewExitChannel(3)
	a := &stubTask{name: "A", exits: exits, exitOnTerm: true}
	b := &stubTask{name: "B", exits: exits, exitOnTerm: true}
	c := &stubTask{name: "C", exits: exits, exitOnTerm: true}

	sup := newTestSupervisor(t, []Task{a, b, c}, exits, time.Second)

	statusCh := make(chan Status, 1)
	go func() { statusCh <- sup.Run() }()

	require.Eventually(t, func() bool { return sup.Phase() == PhaseRunning },
		time.Second, time.Millisecond)

	b.crash()

	var st Status
	select {
	case st = <-statusCh:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not terminate")
	}

	assert.Equal(t, "B", st.TriggerTask)
	assert.Nil(t, st.Signal)
	assert.NoError(t, st.Err)
	assert.Equal(t, PhaseTerminated, sup.Phase())

	assert.GreaterOrEqual(t, a.terminations(), 1, "A was not asked to terminate")
	assert.GreaterOrEqual(t, c.terminations(), 1, "C was not asked to terminate")
	assert.Zero(t, b.terminations(), "already-exited trigger task was signaled")
}

func TestSupervisorSpawnFailureAbortsStartup(t *testing.T) {
	exits := NewExitChannel(3)
	a := &stubTask{name: "A", exits: exits, exitOnTerm: true}
	b := &stubTask{name: "B", exits: exits, startErr: ErrEmptyCommand}
	c := &stubTask{name: "C", exits: exits, exitOnTerm: true}

	sup := newTestSupervisor(t, []Task{a, b, c}, exits, time.Second)
	st := sup.Run()

	var spawnErr *SpawnError
	require.ErrorAs(t, st.Err, &spawnErr)
	assert.Equal(t, "B", spawnErr.Task)

	assert.False(t, c.started, "task after the failing one was started")
	assert.GreaterOrEqual(t, a.terminations(), 1, "already-started task was not torn down")
	assert.Equal(t, PhaseTerminated, sup.Phase())
}

func TestSupervisorConcurrentExitsSingleShutdown(t *testing.T) {
	exits := NewExitChannel(2)
	a := &stubTask{name: "A", exits: exits, exitOnTerm: true}
	b := &stubTask{name: "B", exits: exits, exitOnTerm: true}

	sup := newTestSupervisor(t, []Task{a, b}, exits, time.Second)

	statusCh := make(chan Status, 1)
	go func() { statusCh <- sup.Run() }()

	require.Eventually(t, func() bool { return sup.Phase() == PhaseRunning },
		time.Second, time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a.crash() }()
	go func() { defer wg.Done(); b.crash() }()
	wg.Wait()

	st := <-statusCh
	assert.Contains(t, []string{"A", "B"}, st.TriggerTask)
	assert.Equal(t, PhaseTerminated, sup.Phase())

	// Both events were consumed: one as trigger, one in the drain.
	assert.Empty(t, exits.Drain(1, 50*time.Millisecond))
}

func TestSupervisorGracePeriodBoundsShutdown(t *testing.T) {
	exits := NewExitChannel(2)
	a := &stubTask{name: "A", exits: exits, exitOnTerm: true}
	// B never confirms termination.
	b := &stubTask{name: "B", exits: exits, exitOnTerm: false}

	grace := 80 * time.Millisecond
	sup := newTestSupervisor(t, []Task{a, b}, exits, grace)

	statusCh := make(chan Status, 1)
	go func() { statusCh <- sup.Run() }()

	require.Eventually(t, func() bool { return sup.Phase() == PhaseRunning },
		time.Second, time.Millisecond)

	start := time.Now()
	a.crash()

	select {
	case <-statusCh:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor blocked past the grace period")
	}

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, grace, "returned before the grace period")
	assert.Less(t, elapsed, 2*time.Second, "did not give up after the grace period")
}

func TestSupervisorStartupOrderAndSettle(t *testing.T) {
	exits := NewExitChannel(3)
	settle := 40 * time.Millisecond
	a := &stubTask{name: "A", exits: exits, exitOnTerm: true, settle: settle}
	b := &stubTask{name: "B", exits: exits, exitOnTerm: true}
	c := &stubTask{name: "C", exits: exits, exitOnTerm: true}

	sup := newTestSupervisor(t, []Task{a, b, c}, exits, time.Second)

	statusCh := make(chan Status, 1)
	go func() { statusCh <- sup.Run() }()

	require.Eventually(t, func() bool { return sup.Phase() == PhaseRunning },
		time.Second, time.Millisecond)

	assert.True(t, a.startedAt.Before(b.startedAt), "A must start before B")
	assert.True(t, b.startedAt.Before(c.startedAt), "B must start before C")
	assert.GreaterOrEqual(t, b.startedAt.Sub(a.startedAt), settle,
		"settling delay not applied between A and B")

	c.crash()
	<-statusCh
}

func TestSupervisorRunID(t *testing.T) {
	exits := NewExitChannel(1)
	sup := newTestSupervisor(t, nil, exits, time.Second)
	assert.NotEmpty(t, sup.RunID())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sup2 := New(nil, exits, Options{
		Logger: logger,
		Policy: newSignalPolicy(false, logger),
		RunID:  "fixed",
	})
	assert.Equal(t, "fixed", sup2.RunID())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "initializing", PhaseInitializing.String())
	assert.Equal(t, "running", PhaseRunning.String())
	assert.Equal(t, "shutting_down", PhaseShuttingDown.String())
	assert.Equal(t, "terminated", PhaseTerminated.String())
	assert.Equal(t, "unknown", Phase(42).String())
}

func TestTaskStateString(t *testing.T) {
	assert.Equal(t, "spawned", StateSpawned.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "terminating", StateTerminating.String())
	assert.Equal(t, "exited", StateExited.String())
	assert.Equal(t, "unknown", TaskState(42).String())
}

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

//go:build !windows

package supervisor

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalPolicyTerminateDelivered(t *testing.T) {
	p := newSignalPolicy(false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sigs := p.Install()
	defer p.Uninstall()

	require.NoError(t, raiseSignal(syscall.SIGTERM))

	select {
	case sig := <-sigs:
		assert.Equal(t, syscall.SIGTERM, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("terminate signal not delivered")
	}
}

func TestSignalPolicyInteractiveConvertsInterrupt(t *testing.T) {
	p := newSignalPolicy(true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sigs := p.Install()
	defer p.Uninstall()

	require.NoError(t, raiseSignal(os.Interrupt))

	// The interrupt must come back out as a terminate, never as an
	// interrupt: one shutdown code path.
	select {
	case sig := <-sigs:
		assert.Equal(t, syscall.SIGTERM, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt was not converted to terminate")
	}
}

func TestSignalPolicyNonInteractiveIgnoresInterrupt(t *testing.T) {
	p := newSignalPolicy(false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sigs := p.Install()
	defer func() {
		p.Uninstall()
		signal.Reset(os.Interrupt)
	}()

	require.NoError(t, raiseSignal(os.Interrupt))

	select {
	case sig := <-sigs:
		t.Fatalf("interrupt leaked through non-interactive policy as %v", sig)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSignalPolicyDropsSignalsDuringShutdown(t *testing.T) {
	p := newSignalPolicy(false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sigs := p.Install()
	defer p.Uninstall()

	// Nobody reads sigs; repeated terminates must not wedge the loop.
	for i := 0; i < 3; i++ {
		require.NoError(t, raiseSignal(syscall.SIGTERM))
		time.Sleep(20 * time.Millisecond)
	}

	assert.Equal(t, syscall.SIGTERM, <-sigs)
	select {
	case sig := <-sigs:
		t.Fatalf("extra signal buffered: %v", sig)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSupervisorSignalTriggeredShutdown(t *testing.T) {
	exits := NewExitChannel(2)
	a := &stubTask{name: "A", exits: exits, exitOnTerm: true}
	b := &stubTask{name: "B", exits: exits, exitOnTerm: true}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sup := New([]Task{a, b}, exits, Options{
		GracePeriod: time.Second,
		Logger:      logger,
		Policy:      newSignalPolicy(false, logger),
	})

	statusCh := make(chan Status, 1)
	go func() { statusCh <- sup.Run() }()

	require.Eventually(t, func() bool { return sup.Phase() == PhaseRunning },
		time.Second, time.Millisecond)

	require.NoError(t, raiseSignal(syscall.SIGTERM))

	var st Status
	select {
	case st = <-statusCh:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down on terminate")
	}

	assert.Equal(t, syscall.SIGTERM, st.Signal)
	assert.Empty(t, st.TriggerTask)
	assert.GreaterOrEqual(t, a.terminations(), 1)
	assert.GreaterOrEqual(t, b.terminations(), 1)
	assert.Equal(t, PhaseTerminated, sup.Phase())
}

func TestReraiseSurvivableSignal(t *testing.T) {
	// SIGCHLD's default disposition is ignore, so the process survives
	// the re-raise and we observe the fallback code.
	code := Reraise(syscall.SIGCHLD)
	assert.Equal(t, 128+int(syscall.SIGCHLD), code)
}

func TestReraiseNonUnixSignal(t *testing.T) {
	assert.Equal(t, 1, Reraise(fakeSignal{}))
}

type fakeSignal struct{}

func (fakeSignal) String() string { return "fake" }
func (fakeSignal) Signal()        {}

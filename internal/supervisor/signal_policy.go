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
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/term"
)

// SignalPolicy decides how interrupt signals are treated, based on
// whether the supervisor's stdout is attached to a terminal.
//
// Interactive (terminal attached): the first interrupt makes the process
// signal itself with terminate, so Ctrl-C and an explicit terminate take
// exactly the same shutdown path, whether the keystroke signal reached
// this process directly or via its process group.
//
// Non-interactive (e.g. running under another process supervisor):
// interrupts are ignored entirely. The parent supervisor may receive the
// same group-delivered interrupt; deferring to its terminate signal
// avoids a double-shutdown race.
type SignalPolicy struct {
	interactive bool
	logger      *slog.Logger

	raw    chan os.Signal
	out    chan os.Signal
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSignalPolicy builds a policy from the process's actual stdout.
func NewSignalPolicy(logger *slog.Logger) *SignalPolicy {
	return newSignalPolicy(term.IsTerminal(int(os.Stdout.Fd())), logger)
}

func newSignalPolicy(interactive bool, logger *slog.Logger) *SignalPolicy {
	return &SignalPolicy{
		interactive: interactive,
		logger:      logger,
	}
}

// Interactive reports whether the policy treats the run as
// terminal-attached.
func (p *SignalPolicy) Interactive() bool { return p.interactive }

// Install registers the process signal handlers and returns the channel
// on which shutdown-triggering signals are delivered. Only terminate
// signals ever appear on it; interrupts are converted or ignored per the
// policy. The channel holds one signal; later arrivals during shutdown
// are dropped.
func (p *SignalPolicy) Install() <-chan os.Signal {
	p.raw = make(chan os.Signal, 4)
	p.out = make(chan os.Signal, 1)
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	if p.interactive {
		signal.Notify(p.raw, terminateSignal, os.Interrupt)
	} else {
		signal.Ignore(os.Interrupt)
		signal.Notify(p.raw, terminateSignal)
	}

	go p.loop()
	return p.out
}

// Uninstall removes the handlers installed by Install.
func (p *SignalPolicy) Uninstall() {
	if p.raw == nil {
		return
	}
	signal.Stop(p.raw)
	close(p.stopCh)
	<-p.doneCh
	p.raw = nil
}

func (p *SignalPolicy) loop() {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			return
		case sig := <-p.raw:
			if sig == os.Interrupt {
				// Route through the terminate path so only one
				// shutdown code path exists.
				p.logger.Debug("interrupt received, re-signaling as terminate")
				if err := raiseSignal(terminateSignal); err != nil {
					p.deliver(terminateSignal)
				}
				continue
			}
			p.deliver(sig)
		}
	}
}

func (p *SignalPolicy) deliver(sig os.Signal) {
	select {
	case p.out <- sig:
	default:
		// Shutdown already triggered; drop.
	}
}

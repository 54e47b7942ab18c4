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

import "time"

// ExitEvent reports that a task's monitored child has terminated.
// Each task produces exactly one ExitEvent over its lifetime, whether the
// child exited normally, crashed, or was killed during shutdown.
type ExitEvent struct {
	// TaskName identifies the task whose child exited.
	TaskName string
}

// ExitChannel is a multi-producer, single-consumer channel of ExitEvents.
//
// Send never blocks: the buffer is sized for one event per task, and each
// task sends at most once, so a task's monitor goroutine can always report
// its exit even after the consumer has stopped reading. The consumer only
// acts on the first event; the rest are drained best-effort during
// shutdown.
type ExitChannel struct {
	ch chan ExitEvent
}

// NewExitChannel creates an ExitChannel with room for capacity events.
// Capacity must be at least the number of tasks that will report on it.
func NewExitChannel(capacity int) *ExitChannel {
	if capacity < 1 {
		capacity = 1
	}
	return &ExitChannel{ch: make(chan ExitEvent, capacity)}
}

// Send reports an exit event without blocking. An event that would
// overflow the buffer is dropped; within the one-event-per-task contract
// this cannot happen.
func (c *ExitChannel) Send(ev ExitEvent) {
	select {
	case c.ch <- ev:
	default:
	}
}

// Receive blocks until an event has been sent, then returns the first
// unconsumed one.
func (c *ExitChannel) Receive() ExitEvent {
	return <-c.ch
}

// Events exposes the underlying stream for use in a select.
func (c *ExitChannel) Events() <-chan ExitEvent {
	return c.ch
}

// Drain collects up to n events, giving up after timeout. It is used
// during shutdown to wait, bounded, for the remaining tasks to confirm
// termination.
func (c *ExitChannel) Drain(n int, timeout time.Duration) []ExitEvent {
	if n <= 0 {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	events := make([]ExitEvent, 0, n)
	for len(events) < n {
		select {
		case ev := <-c.ch:
			events = append(events, ev)
		case <-deadline.C:
			return events
		}
	}
	return events
}

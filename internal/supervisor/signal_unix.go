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
	"os"
	"os/signal"
	"syscall"
)

// terminateSignal is the platform's graceful-stop signal.
var terminateSignal os.Signal = syscall.SIGTERM

// raiseSignal sends sig to the current process.
func raiseSignal(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return syscall.EINVAL
	}
	return syscall.Kill(os.Getpid(), s)
}

// Reraise restores sig's default disposition and re-delivers it to the
// current process, so a parent observes signal-based death rather than a
// plain exit code. Returns the fallback exit code to use if the signal
// does not kill the process.
func Reraise(sig os.Signal) int {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return 1
	}
	signal.Reset(sig)
	if err := syscall.Kill(os.Getpid(), s); err != nil {
		return 1
	}
	// Delivery is asynchronous; if we are still alive the caller exits
	// with the conventional signal code.
	return 128 + int(s)
}

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

//go:build windows

package supervisor

import (
	"errors"
	"os"
	"syscall"
)

// terminateSignal is the platform's graceful-stop signal. Go delivers
// console close events as SIGTERM on Windows.
var terminateSignal os.Signal = syscall.SIGTERM

// raiseSignal is unsupported on Windows; callers fall back to delivering
// the terminate signal internally.
func raiseSignal(os.Signal) error {
	return errors.ErrUnsupported
}

// Reraise cannot restore signal dispositions on Windows; signal-triggered
// shutdown degrades to a plain exit code.
func Reraise(os.Signal) int {
	return 1
}

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
	"fmt"
	"os"
	"os/exec"
)

// setProcessGroup is a no-op on Windows; there is no Setpgid equivalent
// that os/exec exposes portably.
func setProcessGroup(cmd *exec.Cmd) {}

// terminateProcessGroup kills the child directly. Windows has no
// graceful terminate signal for console-less processes.
func terminateProcessGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

// exitDisposition renders how a child ended.
func exitDisposition(ps *os.ProcessState) string {
	if ps == nil {
		return "unknown"
	}
	return fmt.Sprintf("code:%d", ps.ExitCode())
}

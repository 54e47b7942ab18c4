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
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a task that
	// has already been started.
	ErrAlreadyStarted = errors.New("supervisor: task already started")

	// ErrEmptyCommand is returned when a launch spec has no command.
	ErrEmptyCommand = errors.New("supervisor: launch spec has empty command")
)

// SpawnError reports that a task's underlying process could not be
// created. It aborts startup: tasks after the failing one are never
// started.
type SpawnError struct {
	Task string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Task, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

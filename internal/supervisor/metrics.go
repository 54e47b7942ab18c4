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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tasksStarted tracks children successfully spawned
	tasksStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stackpilot_tasks_started_total",
			Help: "Total child processes successfully spawned",
		},
	)

	// taskExits tracks exit events by task
	taskExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stackpilot_task_exits_total",
			Help: "Total task exit events by task name",
		},
		[]string{"task"},
	)

	// shutdowns tracks shutdown triggers by cause
	shutdowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stackpilot_shutdowns_total",
			Help: "Total supervisor shutdowns by trigger cause",
		},
		[]string{"cause"},
	)

	// shutdownStragglers tracks tasks that missed the grace period
	shutdownStragglers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stackpilot_shutdown_stragglers_total",
			Help: "Total tasks that did not confirm exit within the grace period",
		},
	)
)

// Shutdown trigger causes for the shutdowns metric.
const (
	causeTaskExit     = "task_exit"
	causeSignal       = "signal"
	causeSpawnFailure = "spawn_failure"
)

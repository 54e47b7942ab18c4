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

package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// linesFollowed tracks complete lines read by the follow stage
	linesFollowed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stackpilot_aggregator_lines_followed_total",
			Help: "Total log lines read from followed files",
		},
	)

	// linesForwarded tracks lines written to the diagnostic stream
	linesForwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stackpilot_aggregator_lines_forwarded_total",
			Help: "Total reformatted lines forwarded to the diagnostic stream",
		},
	)

	// truncationsDetected tracks followed files shrinking under us
	truncationsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stackpilot_aggregator_truncations_total",
			Help: "Total truncations detected on followed files",
		},
	)

	// rotationsDetected tracks followed files being removed or renamed
	rotationsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stackpilot_aggregator_rotations_total",
			Help: "Total rotations detected on followed files",
		},
	)
)

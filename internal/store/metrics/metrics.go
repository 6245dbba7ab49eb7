// Copyright 2026 Arcentra Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes storage-layer counters on a dedicated registry
// that embedding processes can mount on their metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry collects all storage metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// RunsCreated counts run records inserted.
	RunsCreated = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "flowstore",
		Name:      "runs_created_total",
		Help:      "Number of run records created.",
	})

	// EventsAppended counts event-log rows appended.
	EventsAppended = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "flowstore",
		Name:      "events_appended_total",
		Help:      "Number of event log entries appended.",
	})

	// BackfillRowsProcessed counts rows rewritten per backfill job.
	BackfillRowsProcessed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowstore",
		Name:      "backfill_rows_processed_total",
		Help:      "Number of rows processed by secondary-index backfills.",
	}, []string{"job"})

	// MalformedRecordsSkipped counts legacy rows a backfill could not parse.
	MalformedRecordsSkipped = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowstore",
		Name:      "malformed_records_skipped_total",
		Help:      "Number of malformed legacy rows skipped during backfills.",
	}, []string{"job"})
)

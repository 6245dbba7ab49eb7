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

package model

import (
	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/arcentrix/flowstore/pkg/serde"
)

// AssetKey identifies a tracked data asset by ordered path segments.
type AssetKey struct {
	Path []string `json:"path"`
}

// String renders the key in its canonical stored form, a JSON array of
// path segments.
func (k AssetKey) String() string {
	raw, err := sonic.Marshal(k.Path)
	if err != nil {
		return ""
	}
	return string(raw)
}

// ParseAssetKey restores an AssetKey from its canonical stored form.
func ParseAssetKey(s string) (AssetKey, error) {
	var path []string
	if err := sonic.UnmarshalString(s, &path); err != nil {
		return AssetKey{}, errors.Wrapf(err, "invalid asset key %q", s)
	}
	if len(path) == 0 {
		return AssetKey{}, errors.Errorf("asset key %q has no path segments", s)
	}
	return AssetKey{Path: path}, nil
}

// Run is the wire representation of a workflow run: the shape the codec
// persists into export bundles and transmits between processes.
// Timestamps are unix seconds; zero means unset.
type Run struct {
	RunID          string            `json:"run_id"`
	JobName        string            `json:"job_name"`
	Status         RunStatus         `json:"status"`
	RunConfig      map[string]any    `json:"run_config,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	RootRunID      string            `json:"root_run_id,omitempty"`
	ParentRunID    string            `json:"parent_run_id,omitempty"`
	SnapshotID     string            `json:"snapshot_id,omitempty"`
	PlanSnapshotID string            `json:"plan_snapshot_id,omitempty"`
	Partition      string            `json:"partition,omitempty"`
	PartitionSet   string            `json:"partition_set,omitempty"`
	StartTime      float64           `json:"start_time,omitempty"`
	EndTime        float64           `json:"end_time,omitempty"`
}

// Event is the wire representation of one event-log entry payload. The
// store derives its index columns (step_key, asset_key, partition) from
// the typed fields at write time.
type Event struct {
	EventType string         `json:"event_type"`
	Message   string         `json:"message,omitempty"`
	Timestamp float64        `json:"timestamp"`
	StepKey   string         `json:"step_key,omitempty"`
	AssetKey  *AssetKey      `json:"asset_key,omitempty"`
	Partition string         `json:"partition,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Common event types emitted by the execution engine.
const (
	EventTypeRunStart        = "RUN_START"
	EventTypeRunSuccess      = "RUN_SUCCESS"
	EventTypeRunFailure      = "RUN_FAILURE"
	EventTypeStepStart       = "STEP_START"
	EventTypeStepSuccess     = "STEP_SUCCESS"
	EventTypeStepFailure     = "STEP_FAILURE"
	EventTypeMaterialization = "ASSET_MATERIALIZATION"
	EventTypeLogMessage      = "LOG_MESSAGE"
)

// RegisterTypes populates reg with every wire type and enum this core
// persists. Tag aliases keep payloads written under historical names
// decodable.
func RegisterTypes(reg *serde.Registry) {
	reg.MustRegister(Run{}, serde.WithTag("Run"),
		serde.WithTagAliases("PipelineRun"),
		serde.WithFieldRenames(map[string]string{"pipeline_name": "job_name"}))
	reg.MustRegister(Event{}, serde.WithTag("EventLogEntry"),
		serde.WithTagAliases("EventRecord"))
	reg.MustRegister(AssetKey{}, serde.WithTag("AssetKey"))

	reg.MustRegisterEnum("RunStatus", RunStatus(""), RunStatusValues()...)
	reg.MustRegisterEnum("InstigatorType", InstigatorType(""),
		string(InstigatorTypeSchedule), string(InstigatorTypeSensor))
	reg.MustRegisterEnum("InstigatorStatus", InstigatorStatus(""),
		string(InstigatorStatusRunning), string(InstigatorStatusStopped))
	reg.MustRegisterEnum("TickStatus", TickStatus(""),
		string(TickStatusStarted), string(TickStatusSuccess),
		string(TickStatusFailure), string(TickStatusSkipped))
}

// NewRegistry builds a frozen registry preloaded with the storage wire
// types. Callers needing additional types compose their own registry via
// RegisterTypes before freezing.
func NewRegistry() *serde.Registry {
	reg := serde.NewRegistry()
	RegisterTypes(reg)
	reg.Freeze()
	return reg
}

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
	"testing"

	"github.com/arcentrix/flowstore/pkg/serde"
)

func TestRun_CodecRoundTrip(t *testing.T) {
	reg := NewRegistry()
	in := Run{
		RunID:     "abc",
		JobName:   "etl",
		Status:    RunStatusStarted,
		Tags:      map[string]string{"k": "v"},
		Partition: "2026-08-23",
		StartTime: 1755945600,
	}
	text, err := reg.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := serde.DecodeAs[Run](reg, text)
	if err != nil {
		t.Fatal(err)
	}
	if out.RunID != in.RunID || out.Status != in.Status || out.StartTime != in.StartTime {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestRun_DecodesHistoricalPipelineRunPayload(t *testing.T) {
	reg := NewRegistry()
	// Payload written by a release that still called runs pipeline runs.
	text := `{"__class__":"PipelineRun","run_id":"abc","pipeline_name":"legacy_job","status":{"__enum__":"RunStatus.SUCCESS"}}`
	out, err := serde.DecodeAs[Run](reg, text)
	if err != nil {
		t.Fatal(err)
	}
	if out.JobName != "legacy_job" {
		t.Errorf("job name = %q, want %q", out.JobName, "legacy_job")
	}
	if out.Status != RunStatusSuccess {
		t.Errorf("status = %q, want SUCCESS", out.Status)
	}
}

func TestEvent_DecodesHistoricalEventRecordPayload(t *testing.T) {
	reg := NewRegistry()
	text := `{"__class__":"EventRecord","event_type":"STEP_START","timestamp":100,"step_key":"s"}`
	out, err := serde.DecodeAs[Event](reg, text)
	if err != nil {
		t.Fatal(err)
	}
	if out.EventType != EventTypeStepStart || out.StepKey != "s" {
		t.Errorf("decoded event = %+v", out)
	}
}

func TestAssetKey_StringParse(t *testing.T) {
	key := AssetKey{Path: []string{"warehouse", "users"}}
	s := key.String()
	if s != `["warehouse","users"]` {
		t.Errorf("canonical form = %s", s)
	}
	parsed, err := ParseAssetKey(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Path) != 2 || parsed.Path[1] != "users" {
		t.Errorf("parsed = %+v", parsed)
	}

	if _, err := ParseAssetKey("[]"); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := ParseAssetKey("not json"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestRunStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		ok       bool
	}{
		{RunStatusQueued, RunStatusStarted, true},
		{RunStatusQueued, RunStatusCanceled, true},
		{RunStatusNotStarted, RunStatusStarted, true},
		{RunStatusStarted, RunStatusSuccess, true},
		{RunStatusStarted, RunStatusFailure, true},
		{RunStatusQueued, RunStatusSuccess, false},
		{RunStatusSuccess, RunStatusStarted, false},
		{RunStatusStarted, RunStatusQueued, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

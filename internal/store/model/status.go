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

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "QUEUED"
	RunStatusNotStarted RunStatus = "NOT_STARTED"
	RunStatusStarted    RunStatus = "STARTED"
	RunStatusSuccess    RunStatus = "SUCCESS"
	RunStatusFailure    RunStatus = "FAILURE"
	RunStatusCanceled   RunStatus = "CANCELED"
)

// RunStatusValues lists every valid run status.
func RunStatusValues() []string {
	return []string{
		string(RunStatusQueued), string(RunStatusNotStarted), string(RunStatusStarted),
		string(RunStatusSuccess), string(RunStatusFailure), string(RunStatusCanceled),
	}
}

// IsTerminal reports whether s admits no further transition.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailure, RunStatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next follows the run lifecycle
// {QUEUED,NOT_STARTED} -> STARTED -> {SUCCESS,FAILURE,CANCELED}.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusQueued, RunStatusNotStarted:
		return next == RunStatusStarted || next == RunStatusCanceled
	case RunStatusStarted:
		return next.IsTerminal()
	}
	return false
}

// InstigatorType discriminates schedules from sensors.
type InstigatorType string

const (
	InstigatorTypeSchedule InstigatorType = "SCHEDULE"
	InstigatorTypeSensor   InstigatorType = "SENSOR"
)

// InstigatorStatus is the running state of a schedule or sensor.
type InstigatorStatus string

const (
	InstigatorStatusRunning InstigatorStatus = "RUNNING"
	InstigatorStatusStopped InstigatorStatus = "STOPPED"
)

// TickStatus is the state of one instigator evaluation attempt.
type TickStatus string

const (
	TickStatusStarted TickStatus = "STARTED"
	TickStatusSuccess TickStatus = "SUCCESS"
	TickStatusFailure TickStatus = "FAILURE"
	TickStatusSkipped TickStatus = "SKIPPED"
)

// IsTerminal reports whether the tick has finished evaluating.
func (s TickStatus) IsTerminal() bool {
	switch s {
	case TickStatusSuccess, TickStatusFailure, TickStatusSkipped:
		return true
	}
	return false
}

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
	"time"
)

// RunRecord is one workflow run row. Rows are created once at submission,
// have their status mutated through the run lifecycle, and are never
// physically deleted by the storage core.
type RunRecord struct {
	ID             uint       `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RunID          string     `gorm:"column:run_id;type:VARCHAR(64);uniqueIndex" json:"run_id"`
	JobName        string     `gorm:"column:job_name;type:VARCHAR(255);index" json:"job_name"`
	Status         RunStatus  `gorm:"column:status;type:VARCHAR(32);index" json:"status"`
	RunConfig      string     `gorm:"column:run_config;type:TEXT" json:"run_config,omitempty"`
	RootRunID      string     `gorm:"column:root_run_id;type:VARCHAR(64)" json:"root_run_id,omitempty"`
	ParentRunID    string     `gorm:"column:parent_run_id;type:VARCHAR(64)" json:"parent_run_id,omitempty"`
	SnapshotID     string     `gorm:"column:snapshot_id;type:VARCHAR(64);index" json:"snapshot_id,omitempty"`
	PlanSnapshotID string     `gorm:"column:plan_snapshot_id;type:VARCHAR(64)" json:"plan_snapshot_id,omitempty"`
	Partition      *string    `gorm:"column:partition;type:VARCHAR(255)" json:"partition,omitempty"`
	PartitionSet   *string    `gorm:"column:partition_set;type:VARCHAR(255)" json:"partition_set,omitempty"`
	StartTime      *time.Time `gorm:"column:start_time;type:DATETIME" json:"start_time,omitempty"`
	EndTime        *time.Time `gorm:"column:end_time;type:DATETIME" json:"end_time,omitempty"`
	CreateTime     time.Time  `gorm:"column:create_time;type:DATETIME;autoCreateTime" json:"create_time"`
	UpdateTime     time.Time  `gorm:"column:update_time;type:DATETIME;autoUpdateTime" json:"update_time"`
}

// TableName returns the table name.
func (RunRecord) TableName() string {
	return "runs"
}

// RunTagRecord is one key/value tag attached to a run. Tag equality
// filters and the partition fallback scan path query this table.
type RunTagRecord struct {
	ID    uint   `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RunID string `gorm:"column:run_id;type:VARCHAR(64);index:idx_run_tags_kv,priority:2" json:"run_id"`
	Key   string `gorm:"column:key;type:VARCHAR(255);index:idx_run_tags_kv,priority:1" json:"key"`
	Value string `gorm:"column:value;type:TEXT" json:"value"`
}

// TableName returns the table name.
func (RunTagRecord) TableName() string {
	return "run_tags"
}

// Reserved tag keys. Partition tags double as the fallback data source
// while the partition index is unbuilt; the time tags carry start/end
// times while the optional start_end_time migration is pending.
const (
	TagPartition    = ".partition"
	TagPartitionSet = ".partition_set"
	TagStartTime    = ".start_time"
	TagEndTime      = ".end_time"
)

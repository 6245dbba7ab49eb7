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

// EventRecord is one row of a run's append-only event stream. log_id is
// monotonically increasing per run; rows are never mutated after insert
// except by index-column backfills. step_key, asset_key and partition are
// derived from the payload and exist only to serve queries.
type EventRecord struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RunID     string    `gorm:"column:run_id;type:VARCHAR(64);uniqueIndex:udx_event_logs_run_log,priority:1" json:"run_id"`
	LogID     int64     `gorm:"column:log_id;uniqueIndex:udx_event_logs_run_log,priority:2" json:"log_id"`
	EventType string    `gorm:"column:event_type;type:VARCHAR(64)" json:"event_type"`
	Timestamp time.Time `gorm:"column:timestamp;type:DATETIME" json:"timestamp"`
	Payload   string    `gorm:"column:payload;type:TEXT" json:"payload"`
	StepKey   *string   `gorm:"column:step_key;type:VARCHAR(255);index" json:"step_key,omitempty"`
	AssetKey  *string   `gorm:"column:asset_key;type:VARCHAR(512);index" json:"asset_key,omitempty"`
	Partition *string   `gorm:"column:partition;type:VARCHAR(255)" json:"partition,omitempty"`
}

// TableName returns the table name.
func (EventRecord) TableName() string {
	return "event_logs"
}

// AssetKeyRecord tracks the materialization history of one asset key. The
// key is considered present iff it was never wiped or its last
// materialization is newer than the wipe tombstone.
type AssetKeyRecord struct {
	ID                           uint       `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	AssetKey                     string     `gorm:"column:asset_key;type:VARCHAR(512);uniqueIndex" json:"asset_key"`
	LastMaterializationTimestamp *time.Time `gorm:"column:last_materialization_timestamp;type:DATETIME" json:"last_materialization_timestamp,omitempty"`
	LastRunID                    *string    `gorm:"column:last_run_id;type:VARCHAR(64)" json:"last_run_id,omitempty"`
	WipeTimestamp                *time.Time `gorm:"column:wipe_timestamp;type:DATETIME" json:"wipe_timestamp,omitempty"`
	Tags                         string     `gorm:"column:tags;type:TEXT" json:"tags,omitempty"`
	CreateTime                   time.Time  `gorm:"column:create_time;type:DATETIME;autoCreateTime" json:"create_time"`
}

// TableName returns the table name.
func (AssetKeyRecord) TableName() string {
	return "asset_keys"
}

// SecondaryIndexRecord marks the build state of one lazily-built secondary
// index. A null migration_completed means the index is not ready and
// queries must use their fallback path.
type SecondaryIndexRecord struct {
	ID                 uint       `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Name               string     `gorm:"column:name;type:VARCHAR(255);uniqueIndex" json:"name"`
	MigrationCompleted *time.Time `gorm:"column:migration_completed;type:DATETIME" json:"migration_completed,omitempty"`
	CreateTime         time.Time  `gorm:"column:create_time;type:DATETIME;autoCreateTime" json:"create_time"`
}

// TableName returns the table name.
func (SecondaryIndexRecord) TableName() string {
	return "secondary_indexes"
}

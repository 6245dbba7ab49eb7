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

// InstigatorStateRecord is the persisted run state of one schedule or
// sensor, keyed by origin id. instigator_data is an opaque codec-encoded
// cursor/metadata blob owned by the evaluator.
type InstigatorStateRecord struct {
	ID             uint             `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	OriginID       string           `gorm:"column:origin_id;type:VARCHAR(255);uniqueIndex" json:"origin_id"`
	InstigatorType InstigatorType   `gorm:"column:instigator_type;type:VARCHAR(16)" json:"instigator_type"`
	Status         InstigatorStatus `gorm:"column:status;type:VARCHAR(16)" json:"status"`
	InstigatorData string           `gorm:"column:instigator_data;type:TEXT" json:"instigator_data,omitempty"`
	CreateTime     time.Time        `gorm:"column:create_time;type:DATETIME;autoCreateTime" json:"create_time"`
	UpdateTime     time.Time        `gorm:"column:update_time;type:DATETIME;autoUpdateTime" json:"update_time"`
}

// TableName returns the table name.
func (InstigatorStateRecord) TableName() string {
	return "instigators"
}

// InstigatorTickRecord is one discrete evaluation attempt of an
// instigator. end_time is set exactly once, on the terminal transition;
// tick ids are time-ordered so per-origin ordering is well-defined.
type InstigatorTickRecord struct {
	ID        uint       `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	TickID    string     `gorm:"column:tick_id;type:VARCHAR(26);uniqueIndex" json:"tick_id"`
	OriginID  string     `gorm:"column:origin_id;type:VARCHAR(255);index" json:"origin_id"`
	Status    TickStatus `gorm:"column:status;type:VARCHAR(16)" json:"status"`
	StartTime time.Time  `gorm:"column:start_time;type:DATETIME" json:"start_time"`
	EndTime   *time.Time `gorm:"column:end_time;type:DATETIME" json:"end_time,omitempty"`
	Error     string     `gorm:"column:error;type:TEXT" json:"error,omitempty"`
}

// TableName returns the table name.
func (InstigatorTickRecord) TableName() string {
	return "instigator_ticks"
}

// SchemaRevisionRecord records the currently applied migration revision
// for one storage domain. One row per domain.
type SchemaRevisionRecord struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Domain     string    `gorm:"column:domain;type:VARCHAR(64);uniqueIndex" json:"domain"`
	Revision   string    `gorm:"column:revision;type:VARCHAR(64)" json:"revision"`
	UpdateTime time.Time `gorm:"column:update_time;type:DATETIME;autoUpdateTime" json:"update_time"`
}

// TableName returns the table name.
func (SchemaRevisionRecord) TableName() string {
	return "schema_revisions"
}

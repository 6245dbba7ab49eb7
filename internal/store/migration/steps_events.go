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

package migration

import (
	"time"

	"gorm.io/gorm"

	"github.com/arcentrix/flowstore/internal/store/model"
)

// Revisions of the event-log domain.
const (
	RevEventsInitial           = "e1_initial"
	RevEventsStepKey           = "e2_step_key"
	RevEventsAssetKeyPartition = "e3_asset_key_partition"
	RevEventsAssetWipeTags     = "e4_asset_wipe_tags"
	RevEventsUniqueRunLog      = "e5_unique_run_log"
)

// eventLogsTableV1 is the event_logs table before any derived index
// columns existed; old rows get theirs backfilled by the event-log data
// migration, not by these schema steps.
type eventLogsTableV1 struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	RunID     string    `gorm:"column:run_id;type:VARCHAR(64);index:idx_event_logs_run_log,priority:1"`
	LogID     int64     `gorm:"column:log_id;index:idx_event_logs_run_log,priority:2"`
	EventType string    `gorm:"column:event_type;type:VARCHAR(64)"`
	Timestamp time.Time `gorm:"column:timestamp;type:DATETIME"`
	Payload   string    `gorm:"column:payload;type:TEXT"`
}

func (eventLogsTableV1) TableName() string { return "event_logs" }

// assetKeysTableV1 is the asset_keys table before materialization and
// wipe tracking columns were added.
type assetKeysTableV1 struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	AssetKey   string    `gorm:"column:asset_key;type:VARCHAR(512);uniqueIndex"`
	CreateTime time.Time `gorm:"column:create_time;type:DATETIME;autoCreateTime"`
}

func (assetKeysTableV1) TableName() string { return "asset_keys" }

// EventLogsChain is the linear migration history of the event-log domain.
func EventLogsChain() *Chain {
	return &Chain{
		Domain: DomainEventLogs,
		Steps: []Step{
			{
				Revision: RevEventsInitial,
				Up: func(tx *gorm.DB) error {
					return tx.Migrator().CreateTable(&eventLogsTableV1{})
				},
				Down: func(tx *gorm.DB) error {
					return tx.Migrator().DropTable(&eventLogsTableV1{})
				},
			},
			{
				Revision: RevEventsStepKey,
				Up:       addColumns(&model.EventRecord{}, "StepKey"),
				Down:     dropColumns(&model.EventRecord{}, "StepKey"),
			},
			{
				Revision: RevEventsAssetKeyPartition,
				Up: func(tx *gorm.DB) error {
					if err := addColumns(&model.EventRecord{}, "AssetKey", "Partition")(tx); err != nil {
						return err
					}
					if tx.Migrator().HasTable(&assetKeysTableV1{}) {
						return nil
					}
					return tx.Migrator().CreateTable(&assetKeysTableV1{})
				},
				Down: func(tx *gorm.DB) error {
					if err := tx.Migrator().DropTable(&assetKeysTableV1{}); err != nil {
						return err
					}
					return dropColumns(&model.EventRecord{}, "AssetKey", "Partition")(tx)
				},
			},
			{
				Revision: RevEventsAssetWipeTags,
				Up: addColumns(&model.AssetKeyRecord{},
					"LastMaterializationTimestamp", "LastRunID", "WipeTimestamp", "Tags"),
				Down: dropColumns(&model.AssetKeyRecord{},
					"LastMaterializationTimestamp", "LastRunID", "WipeTimestamp", "Tags"),
			},
			{
				// The (run_id, log_id) index must be unique so concurrent
				// appenders cannot both commit the same log id; the append
				// path retries on the resulting duplicate-key error.
				Revision: RevEventsUniqueRunLog,
				Up: func(tx *gorm.DB) error {
					if err := tx.Migrator().DropIndex(&model.EventRecord{}, "idx_event_logs_run_log"); err != nil {
						return err
					}
					return tx.Migrator().CreateIndex(&model.EventRecord{}, "udx_event_logs_run_log")
				},
				Down: func(tx *gorm.DB) error {
					if err := tx.Migrator().DropIndex(&model.EventRecord{}, "udx_event_logs_run_log"); err != nil {
						return err
					}
					return tx.Migrator().CreateIndex(&eventLogsTableV1{}, "idx_event_logs_run_log")
				},
			},
		},
	}
}

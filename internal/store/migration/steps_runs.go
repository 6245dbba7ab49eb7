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

// Revisions of the runs domain.
const (
	RevRunsInitial      = "r1_initial"
	RevRunsSnapshots    = "r2_snapshots"
	RevRunsPartitions   = "r3_run_partitions"
	RevRunsStartEndTime = "r4_start_end_time"
)

// runsTableV1 is the runs table as first shipped. Later revisions add
// columns onto this shape.
type runsTableV1 struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	RunID       string    `gorm:"column:run_id;type:VARCHAR(64);uniqueIndex"`
	JobName     string    `gorm:"column:job_name;type:VARCHAR(255);index"`
	Status      string    `gorm:"column:status;type:VARCHAR(32);index"`
	RunConfig   string    `gorm:"column:run_config;type:TEXT"`
	RootRunID   string    `gorm:"column:root_run_id;type:VARCHAR(64)"`
	ParentRunID string    `gorm:"column:parent_run_id;type:VARCHAR(64)"`
	CreateTime  time.Time `gorm:"column:create_time;type:DATETIME;autoCreateTime"`
	UpdateTime  time.Time `gorm:"column:update_time;type:DATETIME;autoUpdateTime"`
}

func (runsTableV1) TableName() string { return "runs" }

// RunsChain is the linear migration history of the runs domain. The
// start/end-time step is optional: while pending, the run store keeps
// times in reserved tags instead of columns.
func RunsChain() *Chain {
	return &Chain{
		Domain: DomainRuns,
		Steps: []Step{
			{
				Revision: RevRunsInitial,
				Up: func(tx *gorm.DB) error {
					if err := tx.Migrator().CreateTable(&runsTableV1{}); err != nil {
						return err
					}
					return tx.Migrator().CreateTable(&model.RunTagRecord{})
				},
				Down: func(tx *gorm.DB) error {
					if err := tx.Migrator().DropTable(&model.RunTagRecord{}); err != nil {
						return err
					}
					return tx.Migrator().DropTable(&runsTableV1{})
				},
			},
			{
				Revision: RevRunsSnapshots,
				Up:       addColumns(&model.RunRecord{}, "SnapshotID", "PlanSnapshotID"),
				Down:     dropColumns(&model.RunRecord{}, "SnapshotID", "PlanSnapshotID"),
			},
			{
				Revision: RevRunsPartitions,
				Up:       addColumns(&model.RunRecord{}, "Partition", "PartitionSet"),
				Down:     dropColumns(&model.RunRecord{}, "Partition", "PartitionSet"),
			},
			{
				Revision: RevRunsStartEndTime,
				Optional: true,
				Up:       addColumns(&model.RunRecord{}, "StartTime", "EndTime"),
				Down:     dropColumns(&model.RunRecord{}, "StartTime", "EndTime"),
			},
		},
	}
}

// addColumns returns an Up func that adds model fields as columns,
// skipping columns that already exist so re-application stays safe.
func addColumns(dst any, fields ...string) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		for _, f := range fields {
			if tx.Migrator().HasColumn(dst, f) {
				continue
			}
			if err := tx.Migrator().AddColumn(dst, f); err != nil {
				return err
			}
		}
		return nil
	}
}

// dropColumns returns a Down func that removes model fields.
func dropColumns(dst any, fields ...string) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		for _, f := range fields {
			if !tx.Migrator().HasColumn(dst, f) {
				continue
			}
			if err := tx.Migrator().DropColumn(dst, f); err != nil {
				return err
			}
		}
		return nil
	}
}

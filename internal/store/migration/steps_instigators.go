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

// Revisions of the instigator domain.
const (
	RevInstigatorsLegacy = "i1_schedules_jobs"
	RevInstigatorsUnify  = "i2_unify_instigators"
)

// schedulesTableV1 and sensorJobsTableV1 are the historical split tables
// that the unification step merges into instigators.
type schedulesTableV1 struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	OriginID     string    `gorm:"column:origin_id;type:VARCHAR(255);uniqueIndex"`
	Status       string    `gorm:"column:status;type:VARCHAR(16)"`
	ScheduleData string    `gorm:"column:schedule_data;type:TEXT"`
	CreateTime   time.Time `gorm:"column:create_time;type:DATETIME;autoCreateTime"`
	UpdateTime   time.Time `gorm:"column:update_time;type:DATETIME;autoUpdateTime"`
}

func (schedulesTableV1) TableName() string { return "schedules" }

type sensorJobsTableV1 struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	OriginID   string    `gorm:"column:origin_id;type:VARCHAR(255);uniqueIndex"`
	Status     string    `gorm:"column:status;type:VARCHAR(16)"`
	JobData    string    `gorm:"column:job_data;type:TEXT"`
	CreateTime time.Time `gorm:"column:create_time;type:DATETIME;autoCreateTime"`
	UpdateTime time.Time `gorm:"column:update_time;type:DATETIME;autoUpdateTime"`
}

func (sensorJobsTableV1) TableName() string { return "sensor_jobs" }

// InstigatorsChain is the linear migration history of the instigator
// domain. The unification step copies both legacy tables into one
// instigators table with a type discriminator defaulted from the source
// table, then drops the legacy tables. Its Down restores only the legacy
// schema shape; the copied data stays in place, making the step one-way
// for data by design of the original history.
func InstigatorsChain() *Chain {
	return &Chain{
		Domain: DomainInstigators,
		Steps: []Step{
			{
				Revision: RevInstigatorsLegacy,
				Up: func(tx *gorm.DB) error {
					if err := tx.Migrator().CreateTable(&schedulesTableV1{}); err != nil {
						return err
					}
					if err := tx.Migrator().CreateTable(&sensorJobsTableV1{}); err != nil {
						return err
					}
					return tx.Migrator().CreateTable(&model.InstigatorTickRecord{})
				},
				Down: func(tx *gorm.DB) error {
					if err := tx.Migrator().DropTable(&model.InstigatorTickRecord{}); err != nil {
						return err
					}
					if err := tx.Migrator().DropTable(&sensorJobsTableV1{}); err != nil {
						return err
					}
					return tx.Migrator().DropTable(&schedulesTableV1{})
				},
			},
			{
				Revision: RevInstigatorsUnify,
				Up: func(tx *gorm.DB) error {
					if err := tx.Migrator().CreateTable(&model.InstigatorStateRecord{}); err != nil {
						return err
					}
					if err := tx.Exec(
						`INSERT INTO instigators (origin_id, instigator_type, status, instigator_data, create_time, update_time)
						 SELECT origin_id, 'SCHEDULE', status, schedule_data, create_time, update_time FROM schedules`,
					).Error; err != nil {
						return err
					}
					if err := tx.Exec(
						`INSERT INTO instigators (origin_id, instigator_type, status, instigator_data, create_time, update_time)
						 SELECT origin_id, 'SENSOR', status, job_data, create_time, update_time FROM sensor_jobs`,
					).Error; err != nil {
						return err
					}
					if err := tx.Migrator().DropTable(&schedulesTableV1{}); err != nil {
						return err
					}
					return tx.Migrator().DropTable(&sensorJobsTableV1{})
				},
				Down: func(tx *gorm.DB) error {
					if err := tx.Migrator().CreateTable(&schedulesTableV1{}); err != nil {
						return err
					}
					if err := tx.Migrator().CreateTable(&sensorJobsTableV1{}); err != nil {
						return err
					}
					return tx.Migrator().DropTable(&model.InstigatorStateRecord{})
				},
			},
		},
	}
}

// DefaultChains lists every domain chain compiled into the binary.
func DefaultChains() []*Chain {
	return []*Chain{RunsChain(), EventLogsChain(), InstigatorsChain()}
}

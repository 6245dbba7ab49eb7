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
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arcentrix/flowstore/internal/store/model"
	"github.com/arcentrix/flowstore/internal/store/storeerr"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newTestManager(t *testing.T, chains ...*Chain) *Manager {
	t.Helper()
	m, err := NewManager(openTestDB(t), chains...)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestUpgrade_ReachesHeadAndIsIdempotent(t *testing.T) {
	m := newTestManager(t, RunsChain())
	ctx := context.Background()

	current, err := m.CurrentRevision(DomainRuns)
	if err != nil {
		t.Fatal(err)
	}
	if current != "" {
		t.Errorf("fresh database revision = %q, want empty", current)
	}

	if err := m.Upgrade(ctx, DomainRuns); err != nil {
		t.Fatal(err)
	}
	current, err = m.CurrentRevision(DomainRuns)
	if err != nil {
		t.Fatal(err)
	}
	if current != RevRunsStartEndTime {
		t.Errorf("revision after upgrade = %q, want %q", current, RevRunsStartEndTime)
	}

	// A second upgrade at head must be a no-op.
	if err := m.Upgrade(ctx, DomainRuns); err != nil {
		t.Fatalf("re-running upgrade at head: %v", err)
	}
}

func TestUpgrade_CreatesExpectedColumns(t *testing.T) {
	m := newTestManager(t, RunsChain())
	if err := m.Upgrade(context.Background(), DomainRuns); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"RunID", "SnapshotID", "PlanSnapshotID", "Partition", "PartitionSet", "StartTime", "EndTime"} {
		if !m.db.Migrator().HasColumn(&model.RunRecord{}, field) {
			t.Errorf("column for field %s missing after upgrade", field)
		}
	}
	if !m.db.Migrator().HasTable(&model.RunTagRecord{}) {
		t.Error("run_tags table missing after upgrade")
	}
}

func TestDowngrade_RevertsColumnsAndTables(t *testing.T) {
	m := newTestManager(t, RunsChain())
	ctx := context.Background()
	if err := m.Upgrade(ctx, DomainRuns); err != nil {
		t.Fatal(err)
	}

	if err := m.Downgrade(ctx, DomainRuns, RevRunsInitial); err != nil {
		t.Fatal(err)
	}
	current, err := m.CurrentRevision(DomainRuns)
	if err != nil {
		t.Fatal(err)
	}
	if current != RevRunsInitial {
		t.Errorf("revision after downgrade = %q, want %q", current, RevRunsInitial)
	}
	for _, field := range []string{"SnapshotID", "Partition", "StartTime"} {
		if m.db.Migrator().HasColumn(&model.RunRecord{}, field) {
			t.Errorf("column for field %s still present after downgrade", field)
		}
	}

	// Reverting everything drops the domain's tables.
	if err := m.Downgrade(ctx, DomainRuns, ""); err != nil {
		t.Fatal(err)
	}
	if m.db.Migrator().HasTable("runs") {
		t.Error("runs table still present after full downgrade")
	}

	// And the chain can be replayed from scratch.
	if err := m.Upgrade(ctx, DomainRuns); err != nil {
		t.Fatalf("re-upgrading after full downgrade: %v", err)
	}
}

func TestDowngrade_RejectsNewerTarget(t *testing.T) {
	m := newTestManager(t, RunsChain())
	ctx := context.Background()
	if err := m.Upgrade(ctx, DomainRuns); err != nil {
		t.Fatal(err)
	}
	if err := m.Downgrade(ctx, DomainRuns, RevRunsInitial); err != nil {
		t.Fatal(err)
	}
	if err := m.Downgrade(ctx, DomainRuns, RevRunsPartitions); err == nil {
		t.Error("expected error downgrading to a newer revision")
	}
}

func TestRequireHead_BlocksUntilRequiredStepsApplied(t *testing.T) {
	m := newTestManager(t, RunsChain())
	ctx := context.Background()

	err := m.RequireHead(DomainRuns)
	if err == nil {
		t.Fatal("expected SchemaMismatch on a fresh database")
	}
	var mismatch *storeerr.SchemaMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("error type = %T, want *storeerr.SchemaMismatch", err)
	}
	if mismatch.Command != MigrateCommand {
		t.Errorf("mismatch command = %q, want %q", mismatch.Command, MigrateCommand)
	}
	if mismatch.Head != RevRunsStartEndTime {
		t.Errorf("mismatch head = %q, want %q", mismatch.Head, RevRunsStartEndTime)
	}

	if err := m.Upgrade(ctx, DomainRuns); err != nil {
		t.Fatal(err)
	}
	if err := m.RequireHead(DomainRuns); err != nil {
		t.Errorf("RequireHead at head: %v", err)
	}
}

func TestRequireHead_OptionalPendingStepPasses(t *testing.T) {
	m := newTestManager(t, RunsChain())
	ctx := context.Background()
	if err := m.Upgrade(ctx, DomainRuns); err != nil {
		t.Fatal(err)
	}
	// Back off only the optional start/end-time step.
	if err := m.Downgrade(ctx, DomainRuns, RevRunsPartitions); err != nil {
		t.Fatal(err)
	}

	if err := m.RequireHead(DomainRuns); err != nil {
		t.Errorf("RequireHead with only optional steps pending: %v", err)
	}
	applied, err := m.IsApplied(DomainRuns, RevRunsStartEndTime)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("IsApplied reports the reverted optional step as applied")
	}
	applied, err = m.IsApplied(DomainRuns, RevRunsPartitions)
	if err != nil {
		t.Fatal(err)
	}
	if !applied {
		t.Error("IsApplied reports an applied step as pending")
	}
}

func TestUpgrade_UnknownDomainFails(t *testing.T) {
	m := newTestManager(t, RunsChain())
	if err := m.Upgrade(context.Background(), Domain("nonsense")); err == nil {
		t.Error("expected error for unknown domain")
	}
}

func TestInstigatorsChain_UnifiesLegacyTables(t *testing.T) {
	m := newTestManager(t, InstigatorsChain())
	ctx := context.Background()

	// Materialize the legacy split-table shape, then seed it.
	if err := m.Upgrade(ctx, DomainInstigators); err != nil {
		t.Fatal(err)
	}
	if err := m.Downgrade(ctx, DomainInstigators, RevInstigatorsLegacy); err != nil {
		t.Fatal(err)
	}
	seed := []struct{ table, origin, status, data string }{
		{"schedules", "sched-a", "RUNNING", `{"cron":"* * * * *"}`},
		{"schedules", "sched-b", "STOPPED", `{"cron":"0 0 * * *"}`},
		{"sensor_jobs", "sensor-a", "RUNNING", `{"interval":30}`},
	}
	for _, row := range seed {
		column := "schedule_data"
		if row.table == "sensor_jobs" {
			column = "job_data"
		}
		err := m.db.Exec(
			"INSERT INTO "+row.table+" (origin_id, status, "+column+", create_time, update_time) VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)",
			row.origin, row.status, row.data,
		).Error
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := m.Upgrade(ctx, DomainInstigators); err != nil {
		t.Fatal(err)
	}

	var recs []model.InstigatorStateRecord
	if err := m.db.Order("origin_id").Find(&recs).Error; err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("unified rows = %d, want 3", len(recs))
	}
	if recs[0].OriginID != "sched-a" || recs[0].InstigatorType != model.InstigatorTypeSchedule {
		t.Errorf("schedule row not merged: %+v", recs[0])
	}
	if recs[2].OriginID != "sensor-a" || recs[2].InstigatorType != model.InstigatorTypeSensor {
		t.Errorf("sensor row not merged: %+v", recs[2])
	}
	if recs[2].InstigatorData != `{"interval":30}` {
		t.Errorf("sensor data blob = %q", recs[2].InstigatorData)
	}
	if m.db.Migrator().HasTable("schedules") || m.db.Migrator().HasTable("sensor_jobs") {
		t.Error("legacy tables still present after unification")
	}
}

func TestEventLogsChain_UniqueIndexSwap(t *testing.T) {
	m := newTestManager(t, EventLogsChain())
	ctx := context.Background()
	if err := m.Upgrade(ctx, DomainEventLogs); err != nil {
		t.Fatal(err)
	}

	insert := func() error {
		return m.db.Exec(
			"INSERT INTO event_logs (run_id, log_id, event_type, timestamp, payload) VALUES ('r', 1, 'RUN_START', CURRENT_TIMESTAMP, '{}')",
		).Error
	}
	if err := insert(); err != nil {
		t.Fatal(err)
	}
	if err := insert(); err == nil {
		t.Fatal("expected unique-constraint error for duplicate (run_id, log_id) at head")
	}

	// Backing off the unique step restores the old non-unique index.
	if err := m.Downgrade(ctx, DomainEventLogs, RevEventsAssetWipeTags); err != nil {
		t.Fatal(err)
	}
	if err := insert(); err != nil {
		t.Errorf("duplicate (run_id, log_id) rejected after downgrade: %v", err)
	}
}

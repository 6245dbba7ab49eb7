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

// Package runs persists workflow run metadata and serves filtered,
// paginated run queries.
package runs

import (
	"context"
	"errors"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/arcentrix/flowstore/internal/store/backfill"
	"github.com/arcentrix/flowstore/internal/store/metrics"
	"github.com/arcentrix/flowstore/internal/store/migration"
	"github.com/arcentrix/flowstore/internal/store/model"
	"github.com/arcentrix/flowstore/internal/store/storeerr"
	"github.com/arcentrix/flowstore/pkg/log"
	"github.com/arcentrix/flowstore/pkg/serde"
)

// Filters narrows a run query. Zero-valued fields do not filter.
type Filters struct {
	JobName      string
	Statuses     []model.RunStatus
	Tags         map[string]string
	Partition    string
	PartitionSet string
	SnapshotID   string
}

// IRunStore defines persistence methods for workflow runs.
type IRunStore interface {
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	QueryRuns(ctx context.Context, filters Filters, cursor string, limit int) ([]*model.Run, string, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	HasBuiltPartitionIndex() (bool, error)
	BuildPartitionIndex(ctx context.Context, force bool) (backfill.Summary, error)
}

// Store implements IRunStore over the runs and run_tags tables.
type Store struct {
	db    *gorm.DB
	mgr   *migration.Manager
	coord *backfill.Coordinator
	reg   *serde.Registry
}

// NewStore creates the run store and registers its partition-index
// backfill job with the coordinator.
func NewStore(db *gorm.DB, mgr *migration.Manager, coord *backfill.Coordinator, reg *serde.Registry) *Store {
	s := &Store{db: db, mgr: mgr, coord: coord, reg: reg}
	coord.Register(backfill.Job{Name: PartitionIndexName, Run: s.buildPartitionIndex})
	return s
}

// timesInColumns reports whether the optional start/end-time migration
// has been applied. While pending the store keeps times in reserved tags.
// Callers must evaluate it before opening a transaction: the revision
// read goes through the outer connection pool, and on a single-connection
// pool an open transaction already holds that connection.
func (s *Store) timesInColumns() (bool, error) {
	applied, err := s.mgr.IsApplied(migration.DomainRuns, migration.RevRunsStartEndTime)
	if err != nil {
		return false, pkgerrors.Wrap(err, "reading start/end-time revision")
	}
	return applied, nil
}

// CreateRun inserts a new run and its tags. The schema guard runs before
// any side effect so a stale domain never acquires partial state.
func (s *Store) CreateRun(ctx context.Context, run *model.Run) error {
	if err := s.mgr.RequireHead(migration.DomainRuns); err != nil {
		return err
	}
	if run == nil || run.RunID == "" {
		return storeerr.Invariantf("run id must not be empty")
	}
	if run.Status == "" {
		run.Status = model.RunStatusNotStarted
	}

	inColumns, err := s.timesInColumns()
	if err != nil {
		return err
	}
	rec, tags, err := s.toRecord(run, inColumns)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.RunRecord{}).Where("run_id = ?", run.RunID).Count(&count).Error; err != nil {
			return pkgerrors.Wrapf(err, "checking run %q", run.RunID)
		}
		if count > 0 {
			return pkgerrors.Wrapf(storeerr.ErrAlreadyExists, "run %q", run.RunID)
		}
		ins := tx
		if !inColumns {
			// The time columns do not exist until the optional migration
			// lands; keep them out of the INSERT.
			ins = tx.Omit("StartTime", "EndTime")
		}
		if err := ins.Create(rec).Error; err != nil {
			return pkgerrors.Wrapf(err, "creating run %q", run.RunID)
		}
		if len(tags) > 0 {
			if err := tx.Create(&tags).Error; err != nil {
				return pkgerrors.Wrapf(err, "creating tags for run %q", run.RunID)
			}
		}
		metrics.RunsCreated.Inc()
		return nil
	})
}

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var rec model.RunRecord
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrapf(storeerr.ErrNotFound, "run %q", runID)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "reading run %q", runID)
	}
	inColumns, err := s.timesInColumns()
	if err != nil {
		return nil, err
	}
	return s.fromRecord(ctx, &rec, inColumns)
}

// QueryRuns returns runs matching filters, newest-created-first, along
// with an opaque cursor for the next page. An empty cursor starts from
// the newest run; an empty returned cursor means the sequence is drained.
func (s *Store) QueryRuns(ctx context.Context, filters Filters, cursor string, limit int) ([]*model.Run, string, error) {
	q := s.db.WithContext(ctx).Model(&model.RunRecord{})

	if cursor != "" {
		lastID, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", storeerr.Invariantf("malformed cursor %q", cursor)
		}
		q = q.Where("id < ?", lastID)
	}
	if filters.JobName != "" {
		q = q.Where("job_name = ?", filters.JobName)
	}
	if len(filters.Statuses) > 0 {
		q = q.Where("status IN ?", filters.Statuses)
	}
	if filters.SnapshotID != "" {
		q = q.Where("snapshot_id = ?", filters.SnapshotID)
	}
	for k, v := range filters.Tags {
		q = q.Where("run_id IN (SELECT run_id FROM run_tags WHERE `key` = ? AND value = ?)", k, v)
	}
	if filters.Partition != "" || filters.PartitionSet != "" {
		var err error
		q, err = s.applyPartitionFilter(q, filters)
		if err != nil {
			return nil, "", err
		}
	}

	q = q.Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []model.RunRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, "", pkgerrors.Wrap(err, "querying runs")
	}
	inColumns, err := s.timesInColumns()
	if err != nil {
		return nil, "", err
	}

	out := make([]*model.Run, 0, len(recs))
	for i := range recs {
		run, err := s.fromRecord(ctx, &recs[i], inColumns)
		if err != nil {
			return nil, "", err
		}
		out = append(out, run)
	}
	next := ""
	if limit > 0 && len(recs) == limit {
		next = strconv.FormatUint(uint64(recs[len(recs)-1].ID), 10)
	}
	return out, next, nil
}

// UpdateRunStatus moves a run through its lifecycle. An out-of-order
// transition is logged as a warning and applied anyway: replay and
// backfill tooling legitimately revisits terminal runs.
func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	if err := s.mgr.RequireHead(migration.DomainRuns); err != nil {
		return err
	}

	var rec model.RunRecord
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrapf(storeerr.ErrNotFound, "run %q", runID)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "reading run %q", runID)
	}
	if !rec.Status.CanTransitionTo(status) {
		log.Warnw("out-of-order run status transition",
			"run_id", runID, "from", rec.Status, "to", status)
	}

	inColumns, err := s.timesInColumns()
	if err != nil {
		return err
	}
	updates := map[string]any{"status": status}
	now := time.Now().UTC()
	if inColumns {
		if status == model.RunStatusStarted && rec.StartTime == nil {
			updates["start_time"] = now
		}
		if status.IsTerminal() && rec.EndTime == nil {
			updates["end_time"] = now
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.RunRecord{}).Where("run_id = ?", runID).Updates(updates).Error; err != nil {
			return pkgerrors.Wrapf(err, "updating run %q", runID)
		}
		if !inColumns {
			// Dual-path mode: persist times as reserved tags until the
			// optional column migration lands.
			if status == model.RunStatusStarted {
				if err := upsertTag(tx, runID, model.TagStartTime, formatUnix(now)); err != nil {
					return err
				}
			}
			if status.IsTerminal() {
				if err := upsertTag(tx, runID, model.TagEndTime, formatUnix(now)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func upsertTag(tx *gorm.DB, runID, key, value string) error {
	var existing model.RunTagRecord
	err := tx.Where("run_id = ? AND `key` = ?", runID, key).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&model.RunTagRecord{RunID: runID, Key: key, Value: value}).Error
	case err != nil:
		return err
	default:
		return tx.Model(&model.RunTagRecord{}).
			Where("run_id = ? AND `key` = ?", runID, key).
			Update("value", value).Error
	}
}

func formatUnix(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func parseUnix(s string) *time.Time {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(0, int64(f*1e9)).UTC()
	return &t
}

func (s *Store) toRecord(run *model.Run, timesInColumns bool) (*model.RunRecord, []model.RunTagRecord, error) {
	rec := &model.RunRecord{
		RunID:          run.RunID,
		JobName:        run.JobName,
		Status:         run.Status,
		RootRunID:      run.RootRunID,
		ParentRunID:    run.ParentRunID,
		SnapshotID:     run.SnapshotID,
		PlanSnapshotID: run.PlanSnapshotID,
	}
	if len(run.RunConfig) > 0 {
		encoded, err := s.reg.Encode(run.RunConfig)
		if err != nil {
			return nil, nil, pkgerrors.Wrapf(err, "encoding run config for %q", run.RunID)
		}
		rec.RunConfig = encoded
	}

	tags := make(map[string]string, len(run.Tags)+2)
	for k, v := range run.Tags {
		tags[k] = v
	}
	// Partition data lives in both the tag form and the indexed columns;
	// the tag form is the fallback scan path while the index is unbuilt.
	if run.Partition != "" {
		tags[model.TagPartition] = run.Partition
		rec.Partition = &run.Partition
	}
	if run.PartitionSet != "" {
		tags[model.TagPartitionSet] = run.PartitionSet
		rec.PartitionSet = &run.PartitionSet
	}
	if timesInColumns {
		if run.StartTime > 0 {
			t := time.Unix(0, int64(run.StartTime*1e9)).UTC()
			rec.StartTime = &t
		}
		if run.EndTime > 0 {
			t := time.Unix(0, int64(run.EndTime*1e9)).UTC()
			rec.EndTime = &t
		}
	} else {
		if run.StartTime > 0 {
			tags[model.TagStartTime] = strconv.FormatFloat(run.StartTime, 'f', 6, 64)
		}
		if run.EndTime > 0 {
			tags[model.TagEndTime] = strconv.FormatFloat(run.EndTime, 'f', 6, 64)
		}
	}

	tagRecs := make([]model.RunTagRecord, 0, len(tags))
	for k, v := range tags {
		tagRecs = append(tagRecs, model.RunTagRecord{RunID: run.RunID, Key: k, Value: v})
	}
	return rec, tagRecs, nil
}

func (s *Store) fromRecord(ctx context.Context, rec *model.RunRecord, timesInColumns bool) (*model.Run, error) {
	var tagRecs []model.RunTagRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", rec.RunID).Find(&tagRecs).Error; err != nil {
		return nil, pkgerrors.Wrapf(err, "reading tags for run %q", rec.RunID)
	}

	run := &model.Run{
		RunID:          rec.RunID,
		JobName:        rec.JobName,
		Status:         rec.Status,
		RootRunID:      rec.RootRunID,
		ParentRunID:    rec.ParentRunID,
		SnapshotID:     rec.SnapshotID,
		PlanSnapshotID: rec.PlanSnapshotID,
		Tags:           map[string]string{},
	}
	if rec.Partition != nil {
		run.Partition = *rec.Partition
	}
	if rec.PartitionSet != nil {
		run.PartitionSet = *rec.PartitionSet
	}

	var startTag, endTag string
	for _, t := range tagRecs {
		switch t.Key {
		case model.TagStartTime:
			startTag = t.Value
		case model.TagEndTime:
			endTag = t.Value
		case model.TagPartition:
			if run.Partition == "" {
				run.Partition = t.Value
			}
		case model.TagPartitionSet:
			if run.PartitionSet == "" {
				run.PartitionSet = t.Value
			}
		default:
			run.Tags[t.Key] = t.Value
		}
	}

	if timesInColumns && rec.StartTime != nil {
		run.StartTime = float64(rec.StartTime.UnixNano()) / 1e9
	} else if startTag != "" {
		if t := parseUnix(startTag); t != nil {
			run.StartTime = float64(t.UnixNano()) / 1e9
		}
	}
	if timesInColumns && rec.EndTime != nil {
		run.EndTime = float64(rec.EndTime.UnixNano()) / 1e9
	} else if endTag != "" {
		if t := parseUnix(endTag); t != nil {
			run.EndTime = float64(t.UnixNano()) / 1e9
		}
	}

	if rec.RunConfig != "" {
		decoded, err := s.reg.Decode(rec.RunConfig)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "decoding run config for %q", rec.RunID)
		}
		if cfg, ok := decoded.(map[string]any); ok {
			run.RunConfig = cfg
		}
	}
	return run, nil
}

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

// Package backfill drives idempotent, resumable recomputation of
// secondary indexes and derived columns across historical rows. Build
// state lives in the secondary_indexes table so queries can pick their
// fallback path until a backfill has drained.
package backfill

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/arcentrix/flowstore/internal/store/model"
	"github.com/arcentrix/flowstore/pkg/log"
)

// Summary reports what one backfill job did. Malformed rows are tallied
// here rather than aborting the job.
type Summary struct {
	RowsProcessed int64
	RowsSkipped   int64
}

// JobFunc performs one full backfill drain. Implementations batch
// internally, commit per batch, and only touch rows their scan predicate
// still matches, so an interrupted run resumes where it stopped. force
// requests recomputation of rows that already look migrated.
type JobFunc func(ctx context.Context, force bool) (Summary, error)

// Job is one named backfill registered by a store.
type Job struct {
	Name string
	Run  JobFunc
}

// Coordinator owns the secondary_indexes bookkeeping and executes
// registered jobs in registration order.
type Coordinator struct {
	db *gorm.DB

	mu   sync.Mutex
	jobs []Job
}

// NewCoordinator creates a coordinator and ensures the bookkeeping table
// exists.
func NewCoordinator(db *gorm.DB) (*Coordinator, error) {
	if err := db.AutoMigrate(&model.SecondaryIndexRecord{}); err != nil {
		return nil, pkgerrors.Wrap(err, "backfill: creating secondary_indexes table")
	}
	return &Coordinator{db: db}, nil
}

// Register adds a job. Stores register at construction time.
func (c *Coordinator) Register(job Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
}

// HasBuiltIndex reports whether the named index has fully drained.
func (c *Coordinator) HasBuiltIndex(name string) (bool, error) {
	var rec model.SecondaryIndexRecord
	err := c.db.Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrapf(err, "backfill: reading index state %q", name)
	}
	return rec.MigrationCompleted != nil, nil
}

// MarkBuilt records the named index as drained.
func (c *Coordinator) MarkBuilt(name string) error {
	now := time.Now().UTC()
	var rec model.SecondaryIndexRecord
	err := c.db.Where("name = ?", name).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = model.SecondaryIndexRecord{Name: name, MigrationCompleted: &now}
		return c.db.Create(&rec).Error
	case err != nil:
		return pkgerrors.Wrapf(err, "backfill: reading index state %q", name)
	default:
		return c.db.Model(&model.SecondaryIndexRecord{}).
			Where("name = ?", name).
			Update("migration_completed", now).Error
	}
}

// RunJob executes one registered job by name and marks it built on
// success.
func (c *Coordinator) RunJob(ctx context.Context, name string, force bool) (Summary, error) {
	c.mu.Lock()
	var job *Job
	for i := range c.jobs {
		if c.jobs[i].Name == name {
			job = &c.jobs[i]
			break
		}
	}
	c.mu.Unlock()
	if job == nil {
		return Summary{}, pkgerrors.Errorf("backfill: unknown job %q", name)
	}
	return c.run(ctx, *job, force)
}

// Run executes every pending registered job. Jobs already built are
// skipped unless force is set.
func (c *Coordinator) Run(ctx context.Context, force bool) (map[string]Summary, error) {
	c.mu.Lock()
	jobs := make([]Job, len(c.jobs))
	copy(jobs, c.jobs)
	c.mu.Unlock()

	out := make(map[string]Summary, len(jobs))
	for _, job := range jobs {
		built, err := c.HasBuiltIndex(job.Name)
		if err != nil {
			return out, err
		}
		if built && !force {
			log.Debugw("backfill already built, skipping", "job", job.Name)
			continue
		}
		summary, err := c.run(ctx, job, force)
		if err != nil {
			return out, err
		}
		out[job.Name] = summary
	}
	return out, nil
}

func (c *Coordinator) run(ctx context.Context, job Job, force bool) (Summary, error) {
	log.Infow("backfill starting", "job", job.Name, "force", force)
	summary, err := job.Run(ctx, force)
	if err != nil {
		return summary, pkgerrors.Wrapf(err, "backfill: job %q", job.Name)
	}
	if err := c.MarkBuilt(job.Name); err != nil {
		return summary, err
	}
	log.Infow("backfill finished",
		"job", job.Name, "processed", summary.RowsProcessed, "skipped", summary.RowsSkipped)
	return summary, nil
}

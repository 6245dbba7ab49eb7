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

package runs

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/arcentrix/flowstore/internal/store/backfill"
	"github.com/arcentrix/flowstore/internal/store/metrics"
	"github.com/arcentrix/flowstore/internal/store/model"
)

// PartitionIndexName is the secondary_indexes entry for the run
// partition columns.
const PartitionIndexName = "run_partitions"

const indexBatchSize = 100

// HasBuiltPartitionIndex reports whether partition queries may use the
// indexed columns. While unbuilt, queries fall back to scanning
// tag-encoded partition data: correct but slower.
func (s *Store) HasBuiltPartitionIndex() (bool, error) {
	return s.coord.HasBuiltIndex(PartitionIndexName)
}

// BuildPartitionIndex walks all run rows, recomputes the partition
// columns from tags and marks the index built. It is idempotent and
// resumable: already-populated rows fall out of the scan predicate, so an
// interrupted build continues where it stopped.
func (s *Store) BuildPartitionIndex(ctx context.Context, force bool) (backfill.Summary, error) {
	return s.coord.RunJob(ctx, PartitionIndexName, force)
}

func (s *Store) applyPartitionFilter(q *gorm.DB, filters Filters) (*gorm.DB, error) {
	built, err := s.HasBuiltPartitionIndex()
	if err != nil {
		return nil, err
	}
	if built {
		if filters.Partition != "" {
			q = q.Where("`partition` = ?", filters.Partition)
		}
		if filters.PartitionSet != "" {
			q = q.Where("partition_set = ?", filters.PartitionSet)
		}
		return q, nil
	}
	if filters.Partition != "" {
		q = q.Where("run_id IN (SELECT run_id FROM run_tags WHERE `key` = ? AND value = ?)",
			model.TagPartition, filters.Partition)
	}
	if filters.PartitionSet != "" {
		q = q.Where("run_id IN (SELECT run_id FROM run_tags WHERE `key` = ? AND value = ?)",
			model.TagPartitionSet, filters.PartitionSet)
	}
	return q, nil
}

// buildPartitionIndex is the registered backfill job body.
func (s *Store) buildPartitionIndex(ctx context.Context, force bool) (backfill.Summary, error) {
	var summary backfill.Summary
	lastID := uint(0)
	for {
		q := s.db.WithContext(ctx).Model(&model.RunRecord{}).
			Where("id > ?", lastID).
			Where("run_id IN (SELECT run_id FROM run_tags WHERE `key` IN ?)",
				[]string{model.TagPartition, model.TagPartitionSet})
		if !force {
			q = q.Where("`partition` IS NULL AND partition_set IS NULL")
		}

		var recs []model.RunRecord
		if err := q.Order("id").Limit(indexBatchSize).Find(&recs).Error; err != nil {
			return summary, pkgerrors.Wrap(err, "scanning runs for partition index")
		}
		if len(recs) == 0 {
			return summary, nil
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range recs {
				rec := &recs[i]
				var tagRecs []model.RunTagRecord
				if err := tx.Where("run_id = ? AND `key` IN ?",
					rec.RunID, []string{model.TagPartition, model.TagPartitionSet}).
					Find(&tagRecs).Error; err != nil {
					return err
				}
				updates := map[string]any{}
				for _, t := range tagRecs {
					switch t.Key {
					case model.TagPartition:
						updates["partition"] = t.Value
					case model.TagPartitionSet:
						updates["partition_set"] = t.Value
					}
				}
				if len(updates) == 0 {
					continue
				}
				if err := tx.Model(&model.RunRecord{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return summary, pkgerrors.Wrap(err, "writing partition index batch")
		}
		summary.RowsProcessed += int64(len(recs))
		metrics.BackfillRowsProcessed.WithLabelValues(PartitionIndexName).Add(float64(len(recs)))
		lastID = recs[len(recs)-1].ID
	}
}

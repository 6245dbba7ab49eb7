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

package eventlog

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/arcentrix/flowstore/internal/store/backfill"
	"github.com/arcentrix/flowstore/internal/store/metrics"
	"github.com/arcentrix/flowstore/internal/store/model"
	"github.com/arcentrix/flowstore/internal/store/storeerr"
	"github.com/arcentrix/flowstore/pkg/log"
	"github.com/arcentrix/flowstore/pkg/serde"
)

// EventIndexName is the secondary_indexes entry for the derived event
// columns.
const EventIndexName = "event_log_index"

const migrateBatchSize = 100

// MigrateEventLogData backfills step_key, asset_key and partition for
// legacy rows written before those columns existed, by re-parsing the
// stored payload. Malformed payloads are counted in the summary and
// skipped; they never abort the migration.
func (s *Store) MigrateEventLogData(ctx context.Context, force bool) (backfill.Summary, error) {
	return s.coord.RunJob(ctx, EventIndexName, force)
}

// migrateEventLogData is the registered backfill job body. Resumability
// comes from the scan predicate: backfilled rows stop matching, so a
// restart continues from the first unprocessed row.
func (s *Store) migrateEventLogData(ctx context.Context, force bool) (backfill.Summary, error) {
	var summary backfill.Summary
	lastID := uint(0)
	for {
		q := s.db.WithContext(ctx).Model(&model.EventRecord{}).Where("id > ?", lastID)
		if !force {
			q = q.Where("step_key IS NULL AND asset_key IS NULL AND `partition` IS NULL")
		}

		var recs []model.EventRecord
		if err := q.Order("id").Limit(migrateBatchSize).Find(&recs).Error; err != nil {
			return summary, pkgerrors.Wrap(err, "scanning event logs")
		}
		if len(recs) == 0 {
			return summary, nil
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range recs {
				rec := &recs[i]
				event, err := serde.DecodeAs[model.Event](s.reg, rec.Payload)
				if err != nil {
					malformed := &storeerr.MalformedRecord{
						Table: rec.TableName(), RowID: int64(rec.ID), Cause: err,
					}
					log.Warnw("skipping malformed legacy event payload",
						"row_id", rec.ID, "run_id", rec.RunID, "error", malformed)
					metrics.MalformedRecordsSkipped.WithLabelValues(EventIndexName).Inc()
					summary.RowsSkipped++
					continue
				}

				updates := map[string]any{}
				if event.StepKey != "" {
					updates["step_key"] = event.StepKey
				}
				if event.AssetKey != nil {
					updates["asset_key"] = event.AssetKey.String()
				}
				if event.Partition != "" {
					updates["partition"] = event.Partition
				}
				if len(updates) > 0 {
					if err := tx.Model(&model.EventRecord{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
						return err
					}
				}
				summary.RowsProcessed++
			}
			return nil
		})
		if err != nil {
			return summary, pkgerrors.Wrap(err, "writing event index batch")
		}
		metrics.BackfillRowsProcessed.WithLabelValues(EventIndexName).Add(float64(len(recs)))
		lastID = recs[len(recs)-1].ID
	}
}

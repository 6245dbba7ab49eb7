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

// Package eventlog persists the append-only per-run event stream and the
// asset-key materialization/tombstone records derived from it.
package eventlog

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/arcentrix/flowstore/internal/store/backfill"
	"github.com/arcentrix/flowstore/internal/store/metrics"
	"github.com/arcentrix/flowstore/internal/store/migration"
	"github.com/arcentrix/flowstore/internal/store/model"
	"github.com/arcentrix/flowstore/internal/store/storeerr"
	"github.com/arcentrix/flowstore/pkg/serde"
)

// IEventLogStore defines persistence methods for run event streams and
// asset keys.
type IEventLogStore interface {
	AppendEvent(ctx context.Context, runID string, event *model.Event) (int64, error)
	GetLogsForRun(ctx context.Context, runID string, cursor string) ([]*model.Event, string, error)
	RecordMaterialization(ctx context.Context, key model.AssetKey, runID string, tags map[string]string, timestamp time.Time) error
	WipeAsset(ctx context.Context, key model.AssetKey) error
	HasAssetKey(ctx context.Context, key model.AssetKey) (bool, error)
	AllAssetKeys(ctx context.Context) ([]model.AssetKey, error)
	GetAssetTags(ctx context.Context, key model.AssetKey) (map[string]string, error)
	MigrateEventLogData(ctx context.Context, force bool) (backfill.Summary, error)
}

// Store implements IEventLogStore over event_logs and asset_keys.
type Store struct {
	db    *gorm.DB
	mgr   *migration.Manager
	coord *backfill.Coordinator
	reg   *serde.Registry
}

// NewStore creates the event-log store and registers its index-column
// backfill job with the coordinator.
func NewStore(db *gorm.DB, mgr *migration.Manager, coord *backfill.Coordinator, reg *serde.Registry) *Store {
	s := &Store{db: db, mgr: mgr, coord: coord, reg: reg}
	coord.Register(backfill.Job{Name: EventIndexName, Run: s.migrateEventLogData})
	return s
}

// appendAttempts bounds the duplicate-key retry loop in AppendEvent.
const appendAttempts = 5

// AppendEvent assigns the next run-scoped log id, persists the encoded
// payload together with its derived index columns, and returns the
// assigned log id. Rows are never mutated after this insert.
//
// The log id is MAX(log_id)+1 under the unique (run_id, log_id) index;
// when a concurrent appender commits the same id first, the insert fails
// on the index and the whole transaction is retried with a fresh read.
func (s *Store) AppendEvent(ctx context.Context, runID string, event *model.Event) (int64, error) {
	if err := s.mgr.RequireHead(migration.DomainEventLogs); err != nil {
		return 0, err
	}
	if runID == "" {
		return 0, storeerr.Invariantf("run id must not be empty")
	}
	if event == nil {
		return 0, storeerr.Invariantf("event must not be nil")
	}
	if event.Timestamp == 0 {
		event.Timestamp = float64(time.Now().UnixNano()) / 1e9
	}

	payload, err := s.reg.Encode(*event)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "encoding event for run %q", runID)
	}

	var logID int64
	for attempt := 1; ; attempt++ {
		logID, err = s.appendOnce(ctx, runID, event, payload)
		if err == nil {
			return logID, nil
		}
		if attempt >= appendAttempts || !isDuplicateKey(err) {
			return 0, err
		}
		// A concurrent appender committed this log id first; re-read MAX
		// and take the next one.
	}
}

func (s *Store) appendOnce(ctx context.Context, runID string, event *model.Event, payload string) (int64, error) {
	var logID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxLogID int64
		row := tx.Model(&model.EventRecord{}).
			Where("run_id = ?", runID).
			Select("COALESCE(MAX(log_id), 0)").
			Row()
		if err := row.Scan(&maxLogID); err != nil {
			return pkgerrors.Wrapf(err, "reading max log id for run %q", runID)
		}
		logID = maxLogID + 1

		rec := &model.EventRecord{
			RunID:     runID,
			LogID:     logID,
			EventType: event.EventType,
			Timestamp: time.Unix(0, int64(event.Timestamp*1e9)).UTC(),
			Payload:   payload,
		}
		if event.StepKey != "" {
			rec.StepKey = &event.StepKey
		}
		if event.AssetKey != nil {
			keyStr := event.AssetKey.String()
			rec.AssetKey = &keyStr
		}
		if event.Partition != "" {
			rec.Partition = &event.Partition
		}
		if err := tx.Create(rec).Error; err != nil {
			return pkgerrors.Wrapf(err, "appending event to run %q", runID)
		}

		if event.EventType == model.EventTypeMaterialization && event.AssetKey != nil {
			tags := map[string]string{}
			for k, v := range event.Metadata {
				if sv, ok := v.(string); ok {
					tags[k] = sv
				}
			}
			if err := s.upsertMaterialization(tx, *event.AssetKey, runID, tags, rec.Timestamp); err != nil {
				return err
			}
		}
		metrics.EventsAppended.Inc()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return logID, nil
}

// isDuplicateKey reports whether err is a unique-constraint violation
// from either supported engine.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// GetLogsForRun returns events for a run in ascending log_id order,
// starting after cursor, plus the cursor for the next call. Repeated
// calls with the advancing cursor observe only new events, which makes
// the sequence restartable and tailable.
func (s *Store) GetLogsForRun(ctx context.Context, runID string, cursor string) ([]*model.Event, string, error) {
	afterLogID := int64(0)
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", storeerr.Invariantf("malformed cursor %q", cursor)
		}
		afterLogID = parsed
	}

	var recs []model.EventRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ? AND log_id > ?", runID, afterLogID).
		Order("log_id").
		Find(&recs).Error
	if err != nil {
		return nil, "", pkgerrors.Wrapf(err, "reading logs for run %q", runID)
	}

	events := make([]*model.Event, 0, len(recs))
	last := afterLogID
	for i := range recs {
		event, err := serde.DecodeAs[model.Event](s.reg, recs[i].Payload)
		if err != nil {
			return nil, "", pkgerrors.Wrapf(err, "decoding event %d of run %q", recs[i].LogID, runID)
		}
		events = append(events, event)
		last = recs[i].LogID
	}
	return events, strconv.FormatInt(last, 10), nil
}

// RecordMaterialization upserts the asset-key record, advancing the last
// materialization timestamp and owning run.
func (s *Store) RecordMaterialization(ctx context.Context, key model.AssetKey, runID string, tags map[string]string, timestamp time.Time) error {
	if err := s.mgr.RequireHead(migration.DomainEventLogs); err != nil {
		return err
	}
	if len(key.Path) == 0 {
		return storeerr.Invariantf("asset key must have at least one path segment")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.upsertMaterialization(tx, key, runID, tags, timestamp.UTC())
	})
}

func (s *Store) upsertMaterialization(tx *gorm.DB, key model.AssetKey, runID string, tags map[string]string, timestamp time.Time) error {
	keyStr := key.String()
	encodedTags := ""
	if len(tags) > 0 {
		var err error
		encodedTags, err = s.reg.Encode(tags)
		if err != nil {
			return pkgerrors.Wrapf(err, "encoding tags for asset %q", keyStr)
		}
	}

	var rec model.AssetKeyRecord
	err := tx.Where("asset_key = ?", keyStr).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = model.AssetKeyRecord{
			AssetKey:                     keyStr,
			LastMaterializationTimestamp: &timestamp,
			LastRunID:                    &runID,
			Tags:                         encodedTags,
		}
		return tx.Create(&rec).Error
	case err != nil:
		return pkgerrors.Wrapf(err, "reading asset %q", keyStr)
	default:
		updates := map[string]any{
			"last_materialization_timestamp": timestamp,
			"last_run_id":                    runID,
		}
		if encodedTags != "" {
			updates["tags"] = encodedTags
		}
		return tx.Model(&model.AssetKeyRecord{}).
			Where("asset_key = ?", keyStr).
			Updates(updates).Error
	}
}

// WipeAsset tombstones an asset key. The key reads as absent until a
// later materialization's timestamp exceeds the wipe timestamp.
func (s *Store) WipeAsset(ctx context.Context, key model.AssetKey) error {
	if err := s.mgr.RequireHead(migration.DomainEventLogs); err != nil {
		return err
	}
	keyStr := key.String()
	now := time.Now().UTC()

	var rec model.AssetKeyRecord
	err := s.db.WithContext(ctx).Where("asset_key = ?", keyStr).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrapf(storeerr.ErrNotFound, "asset %q", keyStr)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "reading asset %q", keyStr)
	}
	return s.db.WithContext(ctx).Model(&model.AssetKeyRecord{}).
		Where("asset_key = ?", keyStr).
		Update("wipe_timestamp", now).Error
}

// HasAssetKey reports whether the key is currently present: its record
// exists and is either unwiped or re-materialized after the wipe.
func (s *Store) HasAssetKey(ctx context.Context, key model.AssetKey) (bool, error) {
	var rec model.AssetKeyRecord
	err := s.db.WithContext(ctx).Where("asset_key = ?", key.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrapf(err, "reading asset %q", key.String())
	}
	return assetPresent(&rec), nil
}

func assetPresent(rec *model.AssetKeyRecord) bool {
	if rec.WipeTimestamp == nil {
		return true
	}
	return rec.LastMaterializationTimestamp != nil &&
		rec.LastMaterializationTimestamp.After(*rec.WipeTimestamp)
}

// AllAssetKeys lists every currently present asset key.
func (s *Store) AllAssetKeys(ctx context.Context) ([]model.AssetKey, error) {
	var recs []model.AssetKeyRecord
	if err := s.db.WithContext(ctx).Order("asset_key").Find(&recs).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "listing asset keys")
	}
	out := make([]model.AssetKey, 0, len(recs))
	for i := range recs {
		if !assetPresent(&recs[i]) {
			continue
		}
		key, err := model.ParseAssetKey(recs[i].AssetKey)
		if err != nil {
			continue
		}
		out = append(out, key)
	}
	return out, nil
}

// GetAssetTags returns the tags stored with the asset's latest
// materialization.
func (s *Store) GetAssetTags(ctx context.Context, key model.AssetKey) (map[string]string, error) {
	var rec model.AssetKeyRecord
	err := s.db.WithContext(ctx).Where("asset_key = ?", key.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrapf(storeerr.ErrNotFound, "asset %q", key.String())
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "reading asset %q", key.String())
	}
	tags := map[string]string{}
	if rec.Tags == "" {
		return tags, nil
	}
	decoded, err := s.reg.Decode(rec.Tags)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "decoding tags for asset %q", key.String())
	}
	if m, ok := decoded.(map[string]any); ok {
		for k, v := range m {
			if sv, ok := v.(string); ok {
				tags[k] = sv
			}
		}
	}
	return tags, nil
}

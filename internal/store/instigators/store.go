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

// Package instigators persists schedule/sensor run state and their
// discrete evaluation attempts (ticks). The store assumes a single
// logical evaluator per origin; it does not lock across calls.
package instigators

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/arcentrix/flowstore/internal/store/migration"
	"github.com/arcentrix/flowstore/internal/store/model"
	"github.com/arcentrix/flowstore/internal/store/storeerr"
)

// IInstigatorStore defines persistence methods for instigator state and
// ticks.
type IInstigatorStore interface {
	AllInstigatorState(ctx context.Context) ([]*model.InstigatorStateRecord, error)
	GetInstigatorState(ctx context.Context, originID string) (*model.InstigatorStateRecord, error)
	AddInstigatorState(ctx context.Context, state *model.InstigatorStateRecord) error
	UpdateInstigatorState(ctx context.Context, state *model.InstigatorStateRecord) error
	DeleteInstigatorState(ctx context.Context, originID string) error
	CreateTick(ctx context.Context, originID string, startTime time.Time) (*model.InstigatorTickRecord, error)
	UpdateTick(ctx context.Context, tickID string, status model.TickStatus, tickErr string) error
	GetTicks(ctx context.Context, originID string, cursor string, limit int) ([]*model.InstigatorTickRecord, string, error)
}

// Store implements IInstigatorStore over instigators and instigator_ticks.
type Store struct {
	db  *gorm.DB
	mgr *migration.Manager
}

// NewStore creates the instigator store.
func NewStore(db *gorm.DB, mgr *migration.Manager) *Store {
	return &Store{db: db, mgr: mgr}
}

// AllInstigatorState returns a full snapshot of current schedule/sensor
// states.
func (s *Store) AllInstigatorState(ctx context.Context) ([]*model.InstigatorStateRecord, error) {
	var recs []*model.InstigatorStateRecord
	if err := s.db.WithContext(ctx).Order("origin_id").Find(&recs).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "listing instigator state")
	}
	return recs, nil
}

// GetInstigatorState returns the state for one origin.
func (s *Store) GetInstigatorState(ctx context.Context, originID string) (*model.InstigatorStateRecord, error) {
	var rec model.InstigatorStateRecord
	err := s.db.WithContext(ctx).Where("origin_id = ?", originID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrapf(storeerr.ErrNotFound, "instigator %q", originID)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "reading instigator %q", originID)
	}
	return &rec, nil
}

// AddInstigatorState inserts state for a new origin.
func (s *Store) AddInstigatorState(ctx context.Context, state *model.InstigatorStateRecord) error {
	if err := s.mgr.RequireHead(migration.DomainInstigators); err != nil {
		return err
	}
	if state == nil || state.OriginID == "" {
		return storeerr.Invariantf("origin id must not be empty")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.InstigatorStateRecord{}).
			Where("origin_id = ?", state.OriginID).Count(&count).Error; err != nil {
			return pkgerrors.Wrapf(err, "checking instigator %q", state.OriginID)
		}
		if count > 0 {
			return pkgerrors.Wrapf(storeerr.ErrAlreadyExists, "instigator %q", state.OriginID)
		}
		return tx.Create(state).Error
	})
}

// UpdateInstigatorState replaces the status and data blob for an origin.
func (s *Store) UpdateInstigatorState(ctx context.Context, state *model.InstigatorStateRecord) error {
	if err := s.mgr.RequireHead(migration.DomainInstigators); err != nil {
		return err
	}
	if state == nil || state.OriginID == "" {
		return storeerr.Invariantf("origin id must not be empty")
	}
	res := s.db.WithContext(ctx).Model(&model.InstigatorStateRecord{}).
		Where("origin_id = ?", state.OriginID).
		Updates(map[string]any{
			"status":          state.Status,
			"instigator_data": state.InstigatorData,
		})
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "updating instigator %q", state.OriginID)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Wrapf(storeerr.ErrNotFound, "instigator %q", state.OriginID)
	}
	return nil
}

// DeleteInstigatorState removes an origin's state. Its ticks are kept as
// history.
func (s *Store) DeleteInstigatorState(ctx context.Context, originID string) error {
	if err := s.mgr.RequireHead(migration.DomainInstigators); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("origin_id = ?", originID).Delete(&model.InstigatorStateRecord{})
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "deleting instigator %q", originID)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Wrapf(storeerr.ErrNotFound, "instigator %q", originID)
	}
	return nil
}

// tickEntropy feeds ULID randomness; monotonic per process so ids mint in
// strictly increasing order even within one millisecond.
var tickEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

// CreateTick opens a new evaluation attempt for an origin in STARTED
// state. Tick ids are ULIDs, so their lexicographic order is their time
// order.
func (s *Store) CreateTick(ctx context.Context, originID string, startTime time.Time) (*model.InstigatorTickRecord, error) {
	if err := s.mgr.RequireHead(migration.DomainInstigators); err != nil {
		return nil, err
	}
	if originID == "" {
		return nil, storeerr.Invariantf("origin id must not be empty")
	}

	rec := &model.InstigatorTickRecord{
		TickID:    ulid.MustNew(ulid.Timestamp(startTime.UTC()), tickEntropy).String(),
		OriginID:  originID,
		Status:    model.TickStatusStarted,
		StartTime: startTime.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, pkgerrors.Wrapf(err, "creating tick for %q", originID)
	}
	return rec, nil
}

// UpdateTick moves a tick to a terminal status, setting end_time exactly
// once. Transitions out of anything but STARTED, or to a non-terminal
// status, are invariant violations and always propagate.
func (s *Store) UpdateTick(ctx context.Context, tickID string, status model.TickStatus, tickErr string) error {
	if err := s.mgr.RequireHead(migration.DomainInstigators); err != nil {
		return err
	}
	if !status.IsTerminal() {
		return storeerr.Invariantf("tick %q cannot transition to non-terminal status %q", tickID, status)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec model.InstigatorTickRecord
		err := tx.Where("tick_id = ?", tickID).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrapf(storeerr.ErrNotFound, "tick %q", tickID)
		}
		if err != nil {
			return pkgerrors.Wrapf(err, "reading tick %q", tickID)
		}
		if rec.Status != model.TickStatusStarted || rec.EndTime != nil {
			return storeerr.Invariantf(
				"tick %q already transitioned to %q; end_time is immutable once set", tickID, rec.Status)
		}
		now := time.Now().UTC()
		return tx.Model(&model.InstigatorTickRecord{}).
			Where("tick_id = ?", tickID).
			Updates(map[string]any{
				"status":   status,
				"end_time": now,
				"error":    tickErr,
			}).Error
	})
}

// GetTicks returns ticks for one origin, most recent first, plus an
// opaque cursor for the next page.
func (s *Store) GetTicks(ctx context.Context, originID string, cursor string, limit int) ([]*model.InstigatorTickRecord, string, error) {
	q := s.db.WithContext(ctx).Where("origin_id = ?", originID)
	if cursor != "" {
		lastID, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", storeerr.Invariantf("malformed cursor %q", cursor)
		}
		q = q.Where("id < ?", lastID)
	}
	q = q.Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []*model.InstigatorTickRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, "", pkgerrors.Wrapf(err, "reading ticks for %q", originID)
	}
	next := ""
	if limit > 0 && len(recs) == limit {
		next = strconv.FormatUint(uint64(recs[len(recs)-1].ID), 10)
	}
	return recs, next, nil
}

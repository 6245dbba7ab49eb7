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

// Package migration tracks and advances the on-disk schema revision of
// each storage domain through an ordered chain of reversible steps.
package migration

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/arcentrix/flowstore/internal/store/model"
	"github.com/arcentrix/flowstore/internal/store/storeerr"
	"github.com/arcentrix/flowstore/pkg/log"
)

// Domain names one independently versioned storage domain.
type Domain string

const (
	DomainRuns        Domain = "runs"
	DomainEventLogs   Domain = "event_logs"
	DomainInstigators Domain = "instigators"
)

// MigrateCommand is the remediation named in SchemaMismatch errors.
const MigrateCommand = "flowstore migrate"

// Step is one schema migration. Up and Down each run inside their own
// transaction; a step marked Optional never blocks mutating store calls,
// the owning store must instead support a dual-path compatibility mode
// until the step is applied.
type Step struct {
	Revision string
	Optional bool
	Up       func(tx *gorm.DB) error
	Down     func(tx *gorm.DB) error
}

// Chain is the linear migration history of one domain, from an initial
// revision to head. Each step's predecessor is the step before it; the
// empty revision denotes a domain with nothing applied.
type Chain struct {
	Domain Domain
	Steps  []Step
}

// Head returns the chain's newest revision.
func (c *Chain) Head() string {
	if len(c.Steps) == 0 {
		return ""
	}
	return c.Steps[len(c.Steps)-1].Revision
}

func (c *Chain) indexOf(revision string) (int, bool) {
	if revision == "" {
		return -1, true
	}
	for i, s := range c.Steps {
		if s.Revision == revision {
			return i, true
		}
	}
	return 0, false
}

// Manager applies migration chains against one database and answers
// revision queries for the stores' head guard.
type Manager struct {
	db     *gorm.DB
	chains map[Domain]*Chain
}

// NewManager creates a manager and ensures the revision bookkeeping table
// exists. It never applies domain migrations by itself.
func NewManager(db *gorm.DB, chains ...*Chain) (*Manager, error) {
	m := &Manager{db: db, chains: map[Domain]*Chain{}}
	for _, c := range chains {
		if _, dup := m.chains[c.Domain]; dup {
			return nil, pkgerrors.Errorf("migration: duplicate chain for domain %q", c.Domain)
		}
		m.chains[c.Domain] = c
	}
	if err := db.AutoMigrate(&model.SchemaRevisionRecord{}); err != nil {
		return nil, pkgerrors.Wrap(err, "migration: creating schema_revisions table")
	}
	return m, nil
}

func (m *Manager) chain(domain Domain) (*Chain, error) {
	c, ok := m.chains[domain]
	if !ok {
		return nil, pkgerrors.Errorf("migration: unknown domain %q", domain)
	}
	return c, nil
}

// CurrentRevision returns the applied revision of a domain; empty string
// means no migration has ever been applied.
func (m *Manager) CurrentRevision(domain Domain) (string, error) {
	if _, err := m.chain(domain); err != nil {
		return "", err
	}
	var rec model.SchemaRevisionRecord
	err := m.db.Where("domain = ?", string(domain)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrapf(err, "migration: reading revision for %q", domain)
	}
	return rec.Revision, nil
}

// HeadRevision returns the newest revision compiled into the binary for a
// domain.
func (m *Manager) HeadRevision(domain Domain) (string, error) {
	c, err := m.chain(domain)
	if err != nil {
		return "", err
	}
	return c.Head(), nil
}

// IsApplied reports whether a specific revision has been applied to the
// domain. Stores use it to pick dual-path reads/writes while an optional
// step is pending.
func (m *Manager) IsApplied(domain Domain, revision string) (bool, error) {
	c, err := m.chain(domain)
	if err != nil {
		return false, err
	}
	target, ok := c.indexOf(revision)
	if !ok {
		return false, pkgerrors.Errorf("migration: unknown revision %q for domain %q", revision, domain)
	}
	current, err := m.CurrentRevision(domain)
	if err != nil {
		return false, err
	}
	cur, ok := c.indexOf(current)
	if !ok {
		return false, pkgerrors.Errorf("migration: stored revision %q not in chain for %q", current, domain)
	}
	return cur >= target, nil
}

// RequireHead is the guard every mutating store call runs first. It
// fails fast with SchemaMismatch when required steps are pending; pending
// steps that are all optional pass, leaving the store in dual-path mode.
func (m *Manager) RequireHead(domain Domain) error {
	c, err := m.chain(domain)
	if err != nil {
		return err
	}
	current, err := m.CurrentRevision(domain)
	if err != nil {
		return err
	}
	cur, ok := c.indexOf(current)
	if !ok {
		return pkgerrors.Errorf("migration: stored revision %q not in chain for %q", current, domain)
	}
	for _, step := range c.Steps[cur+1:] {
		if !step.Optional {
			return &storeerr.SchemaMismatch{
				Domain:  string(domain),
				Current: current,
				Head:    c.Head(),
				Command: MigrateCommand,
			}
		}
	}
	return nil
}

// Upgrade applies all pending steps of a domain in order, one transaction
// per step. A failure mid-chain leaves the domain at the last committed
// revision. Invoking it at head is a no-op.
func (m *Manager) Upgrade(ctx context.Context, domain Domain) error {
	c, err := m.chain(domain)
	if err != nil {
		return err
	}
	current, err := m.CurrentRevision(domain)
	if err != nil {
		return err
	}
	cur, ok := c.indexOf(current)
	if !ok {
		return pkgerrors.Errorf("migration: stored revision %q not in chain for %q", current, domain)
	}
	for _, step := range c.Steps[cur+1:] {
		log.Infow("applying migration step", "domain", domain, "revision", step.Revision)
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := step.Up(tx); err != nil {
				return pkgerrors.Wrapf(err, "migration: step %q up", step.Revision)
			}
			return m.setRevision(tx, domain, step.Revision)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// UpgradeAll upgrades every registered domain.
func (m *Manager) UpgradeAll(ctx context.Context) error {
	for domain := range m.chains {
		if err := m.Upgrade(ctx, domain); err != nil {
			return err
		}
	}
	return nil
}

// Downgrade applies down-steps in reverse until target is reached. The
// empty target reverts everything. Intended for operators and tests; the
// normal read/write paths never call it.
func (m *Manager) Downgrade(ctx context.Context, domain Domain, target string) error {
	c, err := m.chain(domain)
	if err != nil {
		return err
	}
	tgt, ok := c.indexOf(target)
	if !ok {
		return pkgerrors.Errorf("migration: unknown target revision %q for domain %q", target, domain)
	}
	current, err := m.CurrentRevision(domain)
	if err != nil {
		return err
	}
	cur, ok := c.indexOf(current)
	if !ok {
		return pkgerrors.Errorf("migration: stored revision %q not in chain for %q", current, domain)
	}
	if tgt > cur {
		return pkgerrors.Errorf("migration: target %q is newer than current %q; use Upgrade", target, current)
	}
	for i := cur; i > tgt; i-- {
		step := c.Steps[i]
		prev := ""
		if i > 0 {
			prev = c.Steps[i-1].Revision
		}
		log.Infow("reverting migration step", "domain", domain, "revision", step.Revision)
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := step.Down(tx); err != nil {
				return pkgerrors.Wrapf(err, "migration: step %q down", step.Revision)
			}
			return m.setRevision(tx, domain, prev)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) setRevision(tx *gorm.DB, domain Domain, revision string) error {
	var rec model.SchemaRevisionRecord
	err := tx.Where("domain = ?", string(domain)).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = model.SchemaRevisionRecord{Domain: string(domain), Revision: revision}
		return tx.Create(&rec).Error
	case err != nil:
		return err
	default:
		return tx.Model(&model.SchemaRevisionRecord{}).
			Where("domain = ?", string(domain)).
			Update("revision", revision).Error
	}
}

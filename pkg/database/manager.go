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

// Package database manages the shared gorm connection pool over the
// configured relational engine.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"

	"github.com/arcentrix/flowstore/pkg/log"
)

// Manager defines the unified database interface.
type Manager interface {
	// DB returns the shared database handle.
	DB() *gorm.DB

	// Close closes all database connections.
	Close() error
}

type managerImpl struct {
	db *gorm.DB
}

func (m *managerImpl) DB() *gorm.DB {
	return m.db
}

func (m *managerImpl) Close() error {
	if m.db == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// NewManager opens the configured engine and tunes the connection pool.
func NewManager(cfg Database) (Manager, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = newSQLiteConnection(cfg)
	case "mysql":
		db, err = newMySQLConnection(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", cfg.Driver, err)
	}
	log.Infow("database connected", "driver", cfg.Driver)
	return &managerImpl{db: db}, nil
}

func gormConfig(cfg Database) *gorm.Config {
	var gormLogger gormlogger.Interface
	if cfg.OutPut {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
	} else {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Silent)
	}
	return &gorm.Config{
		Logger: gormLogger,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func newSQLiteConnection(cfg Database) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.SQLite.Path), gormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite file %q: %w", cfg.SQLite.Path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB handle: %w", err)
	}
	// A single writer connection keeps sqlite free of SQLITE_BUSY under
	// interleaved store calls.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// newMySQLConnection creates a MySQL connection with DBResolver support
// for read/write splitting.
func newMySQLConnection(cfg Database) (*gorm.DB, error) {
	mysqlCfg := cfg.MySQL
	defaultDSN := buildMySQLDSN(mysqlCfg.User, mysqlCfg.Password, mysqlCfg.Host, mysqlCfg.Port, mysqlCfg.DBName)

	db, err := gorm.Open(mysql.Open(defaultDSN), gormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	hasPrimary := len(mysqlCfg.Primary) > 0
	hasReplicas := len(mysqlCfg.Replicas) > 0
	if hasPrimary || hasReplicas {
		resolverConfig := dbresolver.Config{
			TraceResolverMode: cfg.OutPut,
		}
		if hasPrimary {
			resolverConfig.Sources = buildDialectors(mysqlCfg.Primary)
		}
		if hasReplicas {
			resolverConfig.Replicas = buildDialectors(mysqlCfg.Replicas)
		}
		err = db.Use(dbresolver.Register(resolverConfig).
			SetConnMaxIdleTime(GetConnMaxIdleTime(cfg.MaxIdleTime)).
			SetConnMaxLifetime(GetConnMaxLifetime(cfg.MaxLifetime)).
			SetMaxIdleConns(cfg.MaxIdleConns).
			SetMaxOpenConns(cfg.MaxOpenConns))
		if err != nil {
			return nil, fmt.Errorf("failed to register DBResolver plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(GetConnMaxLifetime(cfg.MaxLifetime))
	sqlDB.SetConnMaxIdleTime(GetConnMaxIdleTime(cfg.MaxIdleTime))

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	if hasPrimary || hasReplicas {
		log.Info("MySQL connected with DBResolver (read-write separation enabled)")
	}
	return db, nil
}

func buildDialectors(dsns []string) []gorm.Dialector {
	out := make([]gorm.Dialector, 0, len(dsns))
	for _, dsn := range dsns {
		out = append(out, mysql.Open(dsn))
	}
	return out
}

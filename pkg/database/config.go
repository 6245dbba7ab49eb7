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

package database

import (
	"fmt"
	"time"
)

// Database is the storage-engine configuration. Driver selects between
// the embedded sqlite file for small deployments and a client-server
// mysql engine for scaled ones.
type Database struct {
	Driver       string       `mapstructure:"driver"` // sqlite or mysql
	SQLite       SQLiteConfig `mapstructure:"sqlite"`
	MySQL        MySQLConfig  `mapstructure:"mysql"`
	MaxOpenConns int          `mapstructure:"maxOpenConns"`
	MaxIdleConns int          `mapstructure:"maxIdleConns"`
	MaxLifetime  int          `mapstructure:"maxLifetime"` // seconds
	MaxIdleTime  int          `mapstructure:"maxIdleTime"` // seconds
	OutPut       bool         `mapstructure:"output"`      // emit SQL to the logger
}

// SQLiteConfig locates the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// MySQLConfig describes the primary connection plus optional read/write
// split sources.
type MySQLConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
	DBName   string   `mapstructure:"dbname"`
	Primary  []string `mapstructure:"primary"`  // DSNs
	Replicas []string `mapstructure:"replicas"` // DSNs
}

// SetDefaults fills zero-valued fields.
func (c *Database) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "flowstore.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 16
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 4
	}
}

// Validate checks configuration consistency.
func (c *Database) Validate() error {
	switch c.Driver {
	case "sqlite", "mysql":
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// GetConnMaxLifetime converts the configured seconds to a duration.
func GetConnMaxLifetime(seconds int) time.Duration {
	if seconds <= 0 {
		return time.Hour
	}
	return time.Duration(seconds) * time.Second
}

// GetConnMaxIdleTime converts the configured seconds to a duration.
func GetConnMaxIdleTime(seconds int) time.Duration {
	if seconds <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(seconds) * time.Second
}

func buildMySQLDSN(user, password, host string, port int, dbName string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbName)
}

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
	"path/filepath"
	"testing"
	"time"
)

func TestDatabase_SetDefaultsAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Database
		wantErr bool
	}{
		{"empty defaults to sqlite", Database{}, false},
		{"explicit mysql", Database{Driver: "mysql"}, false},
		{"unsupported driver", Database{Driver: "oracle"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.SetDefaults()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	var cfg Database
	cfg.SetDefaults()
	if cfg.Driver != "sqlite" || cfg.SQLite.Path != "flowstore.db" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.MaxOpenConns != 16 || cfg.MaxIdleConns != 4 {
		t.Errorf("pool defaults = %d/%d", cfg.MaxOpenConns, cfg.MaxIdleConns)
	}
}

func TestConnDurations(t *testing.T) {
	if got := GetConnMaxLifetime(0); got != time.Hour {
		t.Errorf("GetConnMaxLifetime(0) = %v", got)
	}
	if got := GetConnMaxLifetime(90); got != 90*time.Second {
		t.Errorf("GetConnMaxLifetime(90) = %v", got)
	}
	if got := GetConnMaxIdleTime(0); got != 30*time.Minute {
		t.Errorf("GetConnMaxIdleTime(0) = %v", got)
	}
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn := buildMySQLDSN("user", "pass", "db.internal", 3306, "flowstore")
	want := "user:pass@tcp(db.internal:3306)/flowstore?charset=utf8mb4&parseTime=True&loc=Local"
	if dsn != want {
		t.Errorf("dsn = %s, want %s", dsn, want)
	}
}

func TestNewManager_SQLite(t *testing.T) {
	cfg := Database{Driver: "sqlite", SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")}}
	cfg.SetDefaults()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if m.DB() == nil {
		t.Fatal("manager returned nil gorm handle")
	}
	if err := m.DB().Exec("SELECT 1").Error; err != nil {
		t.Errorf("probe query failed: %v", err)
	}
}

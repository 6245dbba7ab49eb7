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

// Package config loads process configuration for the storage tooling.
package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/arcentrix/flowstore/pkg/database"
	"github.com/arcentrix/flowstore/pkg/log"
)

// AppConfig is the full process configuration.
type AppConfig struct {
	Log      log.Conf          `mapstructure:"log"`
	Database database.Database `mapstructure:"database"`
}

var (
	cfg  AppConfig
	mu   sync.RWMutex
	once sync.Once
)

// NewConf loads configuration from the given file exactly once and
// returns it.
func NewConf(confFile string) *AppConfig {
	once.Do(func() {
		var err error
		cfg, err = LoadConfigFile(confFile)
		if err != nil {
			panic(fmt.Sprintf("load config file error: %s", err))
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return &cfg
}

// GetConfig returns the current configuration (hot-reload safe).
func GetConfig() AppConfig {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadConfigFile reads and watches the configuration file.
func LoadConfigFile(confFile string) (AppConfig, error) {
	config := viper.New()
	config.SetConfigFile(confFile)
	if err := config.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read configuration file: %v", err)
	}

	config.WatchConfig()
	config.OnConfigChange(func(e fsnotify.Event) {
		log.Infow("configuration changed, re-reading", "file", e.Name)
		if err := config.ReadInConfig(); err != nil {
			log.Errorw("failed to re-read configuration file", "error", err, "file", e.Name)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if err := config.Unmarshal(&cfg); err != nil {
			log.Errorw("failed to unmarshal configuration file", "error", err, "file", e.Name)
			return
		}
		cfg.Log.SetDefaults()
		cfg.Database.SetDefaults()
	})

	var loaded AppConfig
	if err := config.Unmarshal(&loaded); err != nil {
		return loaded, fmt.Errorf("failed to unmarshal configuration file: %v", err)
	}
	loaded.Log.SetDefaults()
	loaded.Database.SetDefaults()
	if err := loaded.Database.Validate(); err != nil {
		return loaded, err
	}
	return loaded, nil
}

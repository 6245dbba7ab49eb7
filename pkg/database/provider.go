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
	"github.com/google/wire"
	"gorm.io/gorm"
)

// ProviderSet provides database-related dependencies.
var ProviderSet = wire.NewSet(
	ProvideManager,
	ProvideDB,
)

// ProvideManager creates and returns a database Manager instance.
func ProvideManager(conf Database) (Manager, error) {
	return NewManager(conf)
}

// ProvideDB provides the shared gorm handle from Manager.
func ProvideDB(manager Manager) *gorm.DB {
	return manager.DB()
}

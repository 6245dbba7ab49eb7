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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arcentrix/flowstore/internal/store/backfill"
	"github.com/arcentrix/flowstore/internal/store/config"
	"github.com/arcentrix/flowstore/internal/store/debugexp"
	"github.com/arcentrix/flowstore/internal/store/eventlog"
	"github.com/arcentrix/flowstore/internal/store/instigators"
	"github.com/arcentrix/flowstore/internal/store/migration"
	"github.com/arcentrix/flowstore/internal/store/model"
	"github.com/arcentrix/flowstore/internal/store/runs"
	"github.com/arcentrix/flowstore/pkg/database"
	"github.com/arcentrix/flowstore/pkg/log"
)

var confFile string

// app bundles the wired storage components for the commands.
type app struct {
	manager    database.Manager
	migrations *migration.Manager
	coord      *backfill.Coordinator
	runStore   *runs.Store
	eventStore *eventlog.Store
	instStore  *instigators.Store
	bundler    *debugexp.Bundler
}

func newApp() (*app, func(), error) {
	conf := config.NewConf(confFile)
	if err := log.Init(&conf.Log); err != nil {
		return nil, nil, err
	}

	manager, err := database.NewManager(conf.Database)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := manager.Close(); err != nil {
			log.Warnw("failed to close database", "error", err)
		}
	}

	db := manager.DB()
	migrations, err := migration.NewManager(db, migration.DefaultChains()...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	coord, err := backfill.NewCoordinator(db)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	reg := model.NewRegistry()
	runStore := runs.NewStore(db, migrations, coord, reg)
	eventStore := eventlog.NewStore(db, migrations, coord, reg)

	return &app{
		manager:    manager,
		migrations: migrations,
		coord:      coord,
		runStore:   runStore,
		eventStore: eventStore,
		instStore:  instigators.NewStore(db, migrations),
		bundler:    debugexp.NewBundler(runStore, eventStore, reg),
	}, cleanup, nil
}

var rootCmd = &cobra.Command{
	Use:   "flowstore",
	Short: "flowstore manages workflow run storage",
	Long:  "flowstore manages the run, event-log and instigator storage domains: schema migrations, index backfills and debug bundles.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			return
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "upgrade every storage domain to its head schema revision",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()
		if err := a.migrations.UpgradeAll(cmd.Context()); err != nil {
			return err
		}
		for _, domain := range []migration.Domain{
			migration.DomainRuns, migration.DomainEventLogs, migration.DomainInstigators,
		} {
			current, err := a.migrations.CurrentRevision(domain)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", domain, current)
		}
		return nil
	},
}

var (
	downgradeDomain   string
	downgradeRevision string
)

var downgradeCmd = &cobra.Command{
	Use:   "downgrade",
	Short: "revert one storage domain to an older schema revision",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()
		return a.migrations.Downgrade(cmd.Context(), migration.Domain(downgradeDomain), downgradeRevision)
	},
}

var backfillForce bool

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "build pending secondary indexes over historical rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()
		summaries, err := a.coord.Run(cmd.Context(), backfillForce)
		for name, summary := range summaries {
			fmt.Printf("%s: processed=%d skipped=%d\n", name, summary.RowsProcessed, summary.RowsSkipped)
		}
		return err
	},
}

var exportCmd = &cobra.Command{
	Use:   "export RUN_ID FILE",
	Short: "export a run and its event stream to a compressed bundle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		return a.bundler.Export(cmd.Context(), args[0], f)
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "import a run bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := newApp()
		if err != nil {
			return err
		}
		defer cleanup()
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		runID, err := a.bundler.Import(cmd.Context(), f)
		if err != nil {
			return err
		}
		fmt.Printf("imported run %s\n", runID)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&confFile, "conf", "conf.d/config.toml", "config file path")
	downgradeCmd.Flags().StringVar(&downgradeDomain, "domain", "", "storage domain to downgrade")
	downgradeCmd.Flags().StringVar(&downgradeRevision, "revision", "", "target revision (empty reverts everything)")
	_ = downgradeCmd.MarkFlagRequired("domain")
	backfillCmd.Flags().BoolVar(&backfillForce, "force", false, "recompute rows that already look migrated")
	rootCmd.AddCommand(migrateCmd, downgradeCmd, backfillCmd, exportCmd, importCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

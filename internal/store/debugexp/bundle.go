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

// Package debugexp exports and imports a portable run-plus-event bundle:
// a gzip-compressed stream of codec lines, the run record first and then
// its events in log order.
package debugexp

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	pkgerrors "github.com/pkg/errors"

	"github.com/arcentrix/flowstore/internal/store/eventlog"
	"github.com/arcentrix/flowstore/internal/store/model"
	"github.com/arcentrix/flowstore/internal/store/runs"
	"github.com/arcentrix/flowstore/internal/store/storeerr"
	"github.com/arcentrix/flowstore/pkg/log"
	"github.com/arcentrix/flowstore/pkg/serde"
)

// Bundler moves runs and their event streams in and out of portable
// compressed files.
type Bundler struct {
	runStore   runs.IRunStore
	eventStore eventlog.IEventLogStore
	reg        *serde.Registry
}

// NewBundler creates a bundler over the given stores.
func NewBundler(runStore runs.IRunStore, eventStore eventlog.IEventLogStore, reg *serde.Registry) *Bundler {
	return &Bundler{runStore: runStore, eventStore: eventStore, reg: reg}
}

// Export writes the run record and its full event stream to w.
func (b *Bundler) Export(ctx context.Context, runID string, w io.Writer) error {
	run, err := b.runStore.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(w)
	defer zw.Close()

	line, err := b.reg.Encode(*run)
	if err != nil {
		return pkgerrors.Wrapf(err, "encoding run %q", runID)
	}
	if _, err := io.WriteString(zw, line+"\n"); err != nil {
		return pkgerrors.Wrap(err, "writing run line")
	}

	cursor := ""
	count := 0
	for {
		events, next, err := b.eventStore.GetLogsForRun(ctx, runID, cursor)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			break
		}
		for _, event := range events {
			line, err := b.reg.Encode(*event)
			if err != nil {
				return pkgerrors.Wrapf(err, "encoding event of run %q", runID)
			}
			if _, err := io.WriteString(zw, line+"\n"); err != nil {
				return pkgerrors.Wrap(err, "writing event line")
			}
			count++
		}
		cursor = next
	}

	log.Infow("exported run bundle", "run_id", runID, "events", count)
	return zw.Close()
}

// Import reads a bundle and recreates its run and events. A colliding run
// id gets a freshly minted one so bundles can be imported next to their
// source. Returns the imported run id.
func (b *Bundler) Import(ctx context.Context, r io.Reader) (string, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return "", pkgerrors.Wrap(err, "opening bundle")
	}
	defer zr.Close()

	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", pkgerrors.Wrap(err, "reading bundle")
		}
		return "", pkgerrors.New("bundle is empty")
	}
	run, err := serde.DecodeAs[model.Run](b.reg, strings.TrimSpace(scanner.Text()))
	if err != nil {
		return "", pkgerrors.Wrap(err, "decoding run line")
	}

	err = b.runStore.CreateRun(ctx, run)
	if pkgerrors.Is(err, storeerr.ErrAlreadyExists) {
		fresh := uuid.NewString()
		log.Warnw("bundle run id already exists, minting a new one",
			"run_id", run.RunID, "new_run_id", fresh)
		run.RunID = fresh
		err = b.runStore.CreateRun(ctx, run)
	}
	if err != nil {
		return "", err
	}

	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		event, err := serde.DecodeAs[model.Event](b.reg, text)
		if err != nil {
			return "", pkgerrors.Wrap(err, "decoding event line")
		}
		if _, err := b.eventStore.AppendEvent(ctx, run.RunID, event); err != nil {
			return "", err
		}
	}
	if err := scanner.Err(); err != nil {
		return "", pkgerrors.Wrap(err, "reading bundle")
	}
	return run.RunID, nil
}

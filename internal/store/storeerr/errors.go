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

// Package storeerr defines the error taxonomy shared by the storage layers.
package storeerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a run, asset, state or tick is absent.
	ErrNotFound = errors.New("storage: record not found")
	// ErrAlreadyExists is returned on duplicate run id at creation.
	ErrAlreadyExists = errors.New("storage: record already exists")
)

// SchemaMismatch is returned by mutating store calls when the storage
// domain is behind its head revision. It names the exact remediation so
// operators do not have to guess.
type SchemaMismatch struct {
	Domain  string
	Current string
	Head    string
	Command string
}

func (e *SchemaMismatch) Error() string {
	current := e.Current
	if current == "" {
		current = "<none>"
	}
	return fmt.Sprintf(
		"storage domain %q is at schema revision %s but the binary expects %s; run %q before retrying",
		e.Domain, current, e.Head, e.Command,
	)
}

// IsSchemaMismatch reports whether err is (or wraps) a SchemaMismatch.
func IsSchemaMismatch(err error) bool {
	var sm *SchemaMismatch
	return errors.As(err, &sm)
}

// MalformedRecord marks a stored payload that could not be decoded during
// a backfill scan. Backfills tally these and move on; they never abort.
type MalformedRecord struct {
	Table string
	RowID int64
	Cause error
}

func (e *MalformedRecord) Error() string {
	return fmt.Sprintf("malformed record in %s (row %d): %v", e.Table, e.RowID, e.Cause)
}

func (e *MalformedRecord) Unwrap() error { return e.Cause }

// SerializationError is returned by the codec when a discriminator tag
// cannot be resolved and no fallback is registered. It fails only the
// offending decode call.
type SerializationError struct {
	Tag   string
	Cause error
}

func (e *SerializationError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("serde: unresolvable discriminator tag %q", e.Tag)
	}
	return fmt.Sprintf("serde: %v", e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// InvariantViolation marks a caller error at the data-model level, such as
// a tick transition out of order. It always propagates.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Msg
}

// Invariantf builds an InvariantViolation with a formatted message.
func Invariantf(format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Msg: fmt.Sprintf(format, args...)}
}

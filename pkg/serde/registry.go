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

// Package serde implements the versioned structured-value codec. Every
// persisted or transmitted composite value is encoded as a self-describing
// JSON object carrying a discriminator tag resolved through an explicit
// type registry, so the wire format can evolve release-over-release
// without breaking stored data.
package serde

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// FallbackFunc is invoked when a decode hits a discriminator tag the
// registry does not know. It receives the raw tag and field map and may
// produce a substitute value; returning an error fails the decode.
type FallbackFunc func(tag string, fields map[string]any) (any, error)

// RawPayload preserves a payload whose tag the current binary does not
// understand. Re-encoding it reproduces the original object so unknown
// values survive a read-modify-write cycle.
type RawPayload struct {
	Tag    string
	Fields map[string]any
}

type typeEntry struct {
	tag      string
	typ      reflect.Type // struct type, not pointer
	newFn    func() any   // pointer to zero value
	defaults map[string]any
	renames  map[string]string // historical field name -> current
}

type enumEntry struct {
	name   string
	typ    reflect.Type
	values map[string]struct{}
}

// Registry maps discriminator tags to reconstruction logic, field-default
// tables and rename tables. It is populated by explicit registration during
// startup and must be frozen before concurrent use; registration after
// Freeze is an error.
type Registry struct {
	mu         sync.RWMutex
	frozen     bool
	byTag      map[string]*typeEntry
	byType     map[reflect.Type]*typeEntry
	enumByName map[string]*enumEntry
	enumByType map[reflect.Type]*enumEntry
	fallback   FallbackFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byTag:      map[string]*typeEntry{},
		byType:     map[reflect.Type]*typeEntry{},
		enumByName: map[string]*enumEntry{},
		enumByType: map[reflect.Type]*enumEntry{},
	}
}

// TypeOpt customizes a type registration.
type TypeOpt func(r *Registry, e *typeEntry) error

// WithTag overrides the discriminator tag (defaults to the Go type name).
func WithTag(tag string) TypeOpt {
	return func(_ *Registry, e *typeEntry) error {
		if tag == "" {
			return errors.New("serde: tag must not be empty")
		}
		e.tag = tag
		return nil
	}
}

// WithDefaults supplies values for fields absent from older payloads.
// Additive schema changes stay silently compatible through this table.
func WithDefaults(defaults map[string]any) TypeOpt {
	return func(_ *Registry, e *typeEntry) error {
		for k, v := range defaults {
			e.defaults[k] = v
		}
		return nil
	}
}

// WithFieldRenames maps historical field names to their current names. The
// table is consulted before construction so an old payload transparently
// decodes into the renamed field.
func WithFieldRenames(renames map[string]string) TypeOpt {
	return func(_ *Registry, e *typeEntry) error {
		for old, current := range renames {
			e.renames[old] = current
		}
		return nil
	}
}

// WithTagAliases registers historical type tags that resolve to this entry.
func WithTagAliases(aliases ...string) TypeOpt {
	return func(r *Registry, e *typeEntry) error {
		for _, alias := range aliases {
			if _, taken := r.byTag[alias]; taken {
				return errors.Errorf("serde: tag %q already registered", alias)
			}
			r.byTag[alias] = e
		}
		return nil
	}
}

// Register adds a composite type to the registry. sample must be a struct
// value (not a pointer); its exported fields are addressed on the wire by
// their json tags.
func (r *Registry) Register(sample any, opts ...TypeOpt) error {
	t := reflect.TypeOf(sample)
	if t == nil || t.Kind() != reflect.Struct {
		return errors.Errorf("serde: Register expects a struct value, got %T", sample)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.New("serde: registry is frozen")
	}

	e := &typeEntry{
		tag:      t.Name(),
		typ:      t,
		defaults: map[string]any{},
		renames:  map[string]string{},
	}
	e.newFn = func() any { return reflect.New(t).Interface() }
	for _, opt := range opts {
		if err := opt(r, e); err != nil {
			return err
		}
	}
	if _, taken := r.byTag[e.tag]; taken {
		return errors.Errorf("serde: tag %q already registered", e.tag)
	}
	if _, taken := r.byType[t]; taken {
		return errors.Errorf("serde: type %s already registered", t)
	}
	r.byTag[e.tag] = e
	r.byType[t] = e
	return nil
}

// MustRegister is Register for startup paths; it panics on error.
func (r *Registry) MustRegister(sample any, opts ...TypeOpt) {
	if err := r.Register(sample, opts...); err != nil {
		panic(err)
	}
}

// RegisterEnum adds a closed set of named states. sample must be a named
// string type; values are encoded as "<name>.<value>" leaf tags.
func (r *Registry) RegisterEnum(name string, sample any, values ...string) error {
	t := reflect.TypeOf(sample)
	if t == nil || t.Kind() != reflect.String {
		return errors.Errorf("serde: RegisterEnum expects a named string type, got %T", sample)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.New("serde: registry is frozen")
	}
	if _, taken := r.enumByName[name]; taken {
		return errors.Errorf("serde: enum %q already registered", name)
	}
	e := &enumEntry{name: name, typ: t, values: map[string]struct{}{}}
	for _, v := range values {
		e.values[v] = struct{}{}
	}
	r.enumByName[name] = e
	r.enumByType[t] = e
	return nil
}

// MustRegisterEnum is RegisterEnum for startup paths; it panics on error.
func (r *Registry) MustRegisterEnum(name string, sample any, values ...string) {
	if err := r.RegisterEnum(name, sample, values...); err != nil {
		panic(err)
	}
}

// SetFallback installs a catch-all decoder for unknown tags. Passing nil
// restores strict decoding.
func (r *Registry) SetFallback(fn FallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fn
}

// RawFallback is a ready-made FallbackFunc that wraps unknown payloads in
// a RawPayload for later re-encoding.
func RawFallback(tag string, fields map[string]any) (any, error) {
	return &RawPayload{Tag: tag, Fields: fields}, nil
}

// Freeze marks the registry immutable. Further registrations fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry) entryByTag(tag string) (*typeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byTag[tag]
	return e, ok
}

func (r *Registry) entryByType(t reflect.Type) (*typeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[t]
	return e, ok
}

func (r *Registry) enumForType(t reflect.Type) (*enumEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enumByType[t]
	return e, ok
}

func (r *Registry) enumNamed(name string) (*enumEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enumByName[name]
	return e, ok
}

func (r *Registry) fallbackFn() FallbackFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

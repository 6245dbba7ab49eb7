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

package serde

import (
	"reflect"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/arcentrix/flowstore/internal/store/storeerr"
)

// Reserved wire-format keys. __class__ carries the discriminator tag of a
// composite, __enum__ a named state, __set__ an unordered string set.
const (
	classKey = "__class__"
	enumKey  = "__enum__"
	setKey   = "__set__"
)

// api is configured for deterministic output so encoded payloads are
// byte-stable across processes.
var api = sonic.Config{SortMapKeys: true, CompactMarshaler: true}.Froze()

// Encode converts a registered value to its wire text.
func (r *Registry) Encode(v any) (string, error) {
	tree, err := r.pack(reflect.ValueOf(v))
	if err != nil {
		return "", err
	}
	raw, err := api.Marshal(tree)
	if err != nil {
		return "", &storeerr.SerializationError{Cause: err}
	}
	return string(raw), nil
}

// Decode converts wire text back to a value. Composite objects are
// resolved through the registry by discriminator tag; the result for a
// registered tag is a pointer to the registered struct type.
func (r *Registry) Decode(text string) (any, error) {
	var tree any
	if err := api.UnmarshalFromString(text, &tree); err != nil {
		return nil, &storeerr.SerializationError{Cause: err}
	}
	return r.unpack(tree)
}

// DecodeAs decodes wire text and asserts the result to *T.
func DecodeAs[T any](r *Registry, text string) (*T, error) {
	v, err := r.Decode(text)
	if err != nil {
		return nil, err
	}
	out, ok := v.(*T)
	if !ok {
		return nil, &storeerr.SerializationError{
			Cause: errors.Errorf("decoded %T, expected %T", v, (*T)(nil)),
		}
	}
	return out, nil
}

func (r *Registry) pack(rv reflect.Value) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	t := rv.Type()

	if raw, ok := rv.Interface().(RawPayload); ok {
		m := map[string]any{classKey: raw.Tag}
		for k, v := range raw.Fields {
			m[k] = v
		}
		return m, nil
	}

	if set, ok := rv.Interface().(StringSet); ok {
		return map[string]any{setKey: set.sorted()}, nil
	}

	if e, ok := r.enumForType(t); ok {
		val := rv.String()
		if _, known := e.values[val]; !known {
			return nil, &storeerr.SerializationError{
				Cause: errors.Errorf("value %q is not a member of enum %s", val, e.name),
			}
		}
		return map[string]any{enumKey: e.name + "." + val}, nil
	}

	if e, ok := r.entryByType(t); ok {
		m := map[string]any{classKey: e.tag}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := wireFieldName(f)
			if name == "" {
				continue
			}
			packed, err := r.pack(rv.Field(i))
			if err != nil {
				return nil, err
			}
			m[name] = packed
		}
		return m, nil
	}

	switch rv.Kind() {
	case reflect.Struct:
		return nil, &storeerr.SerializationError{
			Cause: errors.Errorf("composite type %s is not registered", t),
		}
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, &storeerr.SerializationError{
				Cause: errors.Errorf("map key type %s is not encodable", t.Key()),
			}
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			packed, err := r.pack(iter.Value())
			if err != nil {
				return nil, err
			}
			m[iter.Key().String()] = packed
		}
		return m, nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			packed, err := r.pack(rv.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = packed
		}
		return out, nil
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.Interface(), nil
	default:
		return nil, &storeerr.SerializationError{
			Cause: errors.Errorf("kind %s is not encodable", rv.Kind()),
		}
	}
}

// unpack rewrites a decoded JSON tree, resolving discriminator tags into
// registered instances. Tag resolution is a pure table lookup; the concrete
// type is never inferred from the shape of the data.
func (r *Registry) unpack(node any) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		if rawTag, ok := n[enumKey]; ok {
			return r.unpackEnum(rawTag)
		}
		if members, ok := n[setKey]; ok {
			return unpackSet(members)
		}
		if rawTag, ok := n[classKey]; ok {
			return r.unpackComposite(rawTag, n)
		}
		out := make(map[string]any, len(n))
		for k, v := range n {
			uv, err := r.unpack(v)
			if err != nil {
				return nil, err
			}
			out[k] = uv
		}
		return out, nil
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			uv, err := r.unpack(v)
			if err != nil {
				return nil, err
			}
			out[i] = uv
		}
		return out, nil
	default:
		return node, nil
	}
}

// unpackSet restores a tagged set as a StringSet so re-encoding keeps
// the set tag instead of degrading to a plain array.
func unpackSet(members any) (any, error) {
	items, ok := members.([]any)
	if !ok {
		return nil, &storeerr.SerializationError{
			Cause: errors.Errorf("malformed set payload of type %T", members),
		}
	}
	set := make(StringSet, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &storeerr.SerializationError{
				Cause: errors.Errorf("set member of type %T is not a string", item),
			}
		}
		set[s] = struct{}{}
	}
	return set, nil
}

func (r *Registry) unpackEnum(rawTag any) (any, error) {
	tag, _ := rawTag.(string)
	name, value, found := strings.Cut(tag, ".")
	if !found {
		return nil, &storeerr.SerializationError{
			Cause: errors.Errorf("malformed enum tag %q", tag),
		}
	}
	e, ok := r.enumNamed(name)
	if !ok {
		return nil, &storeerr.SerializationError{Tag: tag}
	}
	if _, known := e.values[value]; !known {
		return nil, &storeerr.SerializationError{
			Cause: errors.Errorf("value %q is not a member of enum %s", value, name),
		}
	}
	return value, nil
}

func (r *Registry) unpackComposite(rawTag any, n map[string]any) (any, error) {
	tag, _ := rawTag.(string)
	e, ok := r.entryByTag(tag)
	if !ok {
		if fb := r.fallbackFn(); fb != nil {
			fields := make(map[string]any, len(n))
			for k, v := range n {
				if k != classKey {
					fields[k] = v
				}
			}
			return fb(tag, fields)
		}
		return nil, &storeerr.SerializationError{Tag: tag}
	}

	// Renames first, so defaults apply to current field names only.
	fields := make(map[string]any, len(n))
	for k, v := range n {
		if k == classKey {
			continue
		}
		if current, renamed := e.renames[k]; renamed {
			k = current
		}
		uv, err := r.unpack(v)
		if err != nil {
			return nil, err
		}
		fields[k] = uv
	}
	for k, v := range e.defaults {
		if _, present := fields[k]; !present {
			fields[k] = v
		}
	}

	raw, err := api.Marshal(fields)
	if err != nil {
		return nil, &storeerr.SerializationError{Cause: err}
	}
	inst := e.newFn()
	if err := api.Unmarshal(raw, inst); err != nil {
		return nil, &storeerr.SerializationError{
			Cause: errors.Wrapf(err, "constructing %s from tag %q", e.typ, tag),
		}
	}
	return inst, nil
}

// wireFieldName resolves the wire name of a struct field from its json tag.
func wireFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

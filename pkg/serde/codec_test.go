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
	"errors"
	"strings"
	"testing"

	"github.com/arcentrix/flowstore/internal/store/storeerr"
)

type job struct {
	Name    string   `json:"name"`
	Retries int      `json:"retries"`
	Owner   string   `json:"owner"`
	Parent  *job     `json:"parent"`
	Labels  []string `json:"labels"`
}

type jobStatus string

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.MustRegister(job{})
	r.MustRegisterEnum("JobStatus", jobStatus(""), "PENDING", "RUNNING", "DONE")
	return r
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	in := job{
		Name:    "nightly",
		Retries: 3,
		Owner:   "ops",
		Parent:  &job{Name: "root"},
		Labels:  []string{"a", "b"},
	}
	text, err := r.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, `"__class__":"job"`) {
		t.Errorf("encoded text missing discriminator: %s", text)
	}

	out, err := DecodeAs[job](r, text)
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != in.Name || out.Retries != in.Retries || out.Owner != in.Owner {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if out.Parent == nil || out.Parent.Name != "root" {
		t.Errorf("nested composite lost: %+v", out.Parent)
	}
	if len(out.Labels) != 2 || out.Labels[0] != "a" {
		t.Errorf("slice field lost: %v", out.Labels)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	r := newTestRegistry(t)
	in := job{Name: "n", Retries: 1, Owner: "o"}
	first, err := r.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Encode(in)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("encoding is not deterministic: %s vs %s", first, again)
		}
	}
}

func TestDecode_MissingFieldsGetDefaults(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(job{}, WithDefaults(map[string]any{"retries": 5, "owner": "unowned"}))

	// An old payload written before retries and owner existed.
	out, err := DecodeAs[job](r, `{"__class__":"job","name":"legacy"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out.Retries != 5 {
		t.Errorf("retries = %d, want default 5", out.Retries)
	}
	if out.Owner != "unowned" {
		t.Errorf("owner = %q, want default %q", out.Owner, "unowned")
	}
	if out.Name != "legacy" {
		t.Errorf("name = %q, want %q", out.Name, "legacy")
	}
}

func TestDecode_DefaultDoesNotOverridePresentField(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(job{}, WithDefaults(map[string]any{"retries": 5}))
	out, err := DecodeAs[job](r, `{"__class__":"job","name":"x","retries":1}`)
	if err != nil {
		t.Fatal(err)
	}
	if out.Retries != 1 {
		t.Errorf("retries = %d, want stored value 1", out.Retries)
	}
}

type renamedV1 struct {
	A string `json:"a"`
	B string `json:"b"`
}

type renamedV2 struct {
	A string `json:"a"`
	C string `json:"c"`
}

func TestDecode_FieldRename(t *testing.T) {
	// Two registries stand in for two releases of the same binary.
	old := NewRegistry()
	old.MustRegister(renamedV1{}, WithTag("Foo"))
	text, err := old.Encode(renamedV1{A: "left", B: "right"})
	if err != nil {
		t.Fatal(err)
	}

	current := NewRegistry()
	current.MustRegister(renamedV2{}, WithTag("Foo"), WithFieldRenames(map[string]string{"b": "c"}))
	out, err := DecodeAs[renamedV2](current, text)
	if err != nil {
		t.Fatal(err)
	}
	if out.C != "right" {
		t.Errorf("renamed field c = %q, want %q", out.C, "right")
	}
	if out.A != "left" {
		t.Errorf("untouched field a = %q, want %q", out.A, "left")
	}
}

func TestDecode_TagAlias(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(job{}, WithTag("Job"), WithTagAliases("LegacyJob"))
	out, err := DecodeAs[job](r, `{"__class__":"LegacyJob","name":"old"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "old" {
		t.Errorf("name = %q, want %q", out.Name, "old")
	}
}

func TestDecode_UnknownTagStrict(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Decode(`{"__class__":"Vanished","x":1}`)
	if err == nil {
		t.Fatal("expected error for unknown tag")
	}
	var serr *storeerr.SerializationError
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *storeerr.SerializationError", err)
	}
	if serr.Tag != "Vanished" {
		t.Errorf("error tag = %q, want %q", serr.Tag, "Vanished")
	}
}

func TestDecode_FallbackPreservesUnknownPayload(t *testing.T) {
	r := newTestRegistry(t)
	r.SetFallback(RawFallback)

	original := `{"__class__":"Vanished","nested":{"k":"v"},"x":1}`
	v, err := r.Decode(original)
	if err != nil {
		t.Fatal(err)
	}
	raw, ok := v.(*RawPayload)
	if !ok {
		t.Fatalf("decoded %T, want *RawPayload", v)
	}
	if raw.Tag != "Vanished" {
		t.Errorf("tag = %q, want %q", raw.Tag, "Vanished")
	}

	// Re-encoding must reproduce the original object.
	again, err := r.Encode(*raw)
	if err != nil {
		t.Fatal(err)
	}
	if again != original {
		t.Errorf("re-encoded = %s, want %s", again, original)
	}
}

func TestEnum_RoundTripAndValidation(t *testing.T) {
	r := newTestRegistry(t)
	text, err := r.Encode(jobStatus("RUNNING"))
	if err != nil {
		t.Fatal(err)
	}
	if text != `{"__enum__":"JobStatus.RUNNING"}` {
		t.Errorf("encoded enum = %s", text)
	}
	v, err := r.Decode(text)
	if err != nil {
		t.Fatal(err)
	}
	if v != "RUNNING" {
		t.Errorf("decoded enum = %v, want RUNNING", v)
	}

	if _, err := r.Encode(jobStatus("EXPLODED")); err == nil {
		t.Error("expected error encoding non-member enum value")
	}
	if _, err := r.Decode(`{"__enum__":"JobStatus.EXPLODED"}`); err == nil {
		t.Error("expected error decoding non-member enum value")
	}
	if _, err := r.Decode(`{"__enum__":"NoSuchEnum.X"}`); err == nil {
		t.Error("expected error decoding unknown enum name")
	}
}

func TestStringSet_SortedOnWire(t *testing.T) {
	r := newTestRegistry(t)
	text, err := r.Encode(NewStringSet("zebra", "apple", "mango"))
	if err != nil {
		t.Fatal(err)
	}
	if text != `{"__set__":["apple","mango","zebra"]}` {
		t.Errorf("encoded set = %s", text)
	}
}

func TestDecode_SetRoundTripsLosslessly(t *testing.T) {
	r := newTestRegistry(t)
	original := `{"__set__":["apple","mango","zebra"]}`
	v, err := r.Decode(original)
	if err != nil {
		t.Fatal(err)
	}
	set, ok := v.(StringSet)
	if !ok {
		t.Fatalf("decoded %T, want StringSet", v)
	}
	if len(set) != 3 || !set.Has("mango") {
		t.Errorf("set members = %v", set)
	}

	// Re-encoding must keep the set tag rather than degrade to an array.
	again, err := r.Encode(set)
	if err != nil {
		t.Fatal(err)
	}
	if again != original {
		t.Errorf("re-encoded = %s, want %s", again, original)
	}

	if _, err := r.Decode(`{"__set__":["ok",1]}`); err == nil {
		t.Error("expected error for a non-string set member")
	}
}

func TestRegister_AfterFreezeFails(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	if err := r.Register(job{}); err == nil {
		t.Error("expected error registering into a frozen registry")
	}
	if err := r.RegisterEnum("JobStatus", jobStatus(""), "X"); err == nil {
		t.Error("expected error registering enum into a frozen registry")
	}
}

func TestRegister_DuplicateTagFails(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(renamedV1{}, WithTag("Foo"))
	if err := r.Register(renamedV2{}, WithTag("Foo")); err == nil {
		t.Error("expected error for duplicate tag")
	}
}

func TestEncode_UnregisteredStructFails(t *testing.T) {
	r := NewRegistry()
	type stranger struct{ X int }
	_, err := r.Encode(stranger{X: 1})
	if err == nil {
		t.Fatal("expected error for unregistered composite")
	}
	var serr *storeerr.SerializationError
	if !errors.As(err, &serr) {
		t.Errorf("error type = %T, want *storeerr.SerializationError", err)
	}
}

func TestDecode_PlainJSONPassesThrough(t *testing.T) {
	r := newTestRegistry(t)
	v, err := r.Decode(`{"a":[1,2],"b":"s"}`)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map", v)
	}
	if m["b"] != "s" {
		t.Errorf("b = %v, want s", m["b"])
	}
}

package lockstate

import (
	"errors"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"slices"
	"testing"
)

// TestAdmits tests the admissibility table
func TestAdmits(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		mode   Mode
		want   bool
	}{
		{"free admits exclusive", Free(), ModeExclusive, true},
		{"free admits shared", Free(), ModeShared, true},
		{"shared admits shared", Shared("a"), ModeShared, true},
		{"shared denies exclusive", Shared("a"), ModeExclusive, false},
		{"exclusive denies shared", Exclusive("a"), ModeShared, false},
		{"exclusive denies exclusive", Exclusive("a"), ModeExclusive, false},
		{"invalid mode", Free(), ModeNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.Admits(tt.mode); got != tt.want {
				t.Errorf("%s.Admits(%s) = %v, want %v", tt.record, tt.mode, got, tt.want)
			}
		})
	}
}

// TestAcquire tests the acquire transitions
func TestAcquire(t *testing.T) {
	r, err := Free().Acquire(ModeShared, "b")
	if err != nil {
		t.Fatalf("shared acquire on free record failed: %v", err)
	}
	r, err = r.Acquire(ModeShared, "a")
	if err != nil {
		t.Fatalf("second shared acquire failed: %v", err)
	}
	if r.Mode != ModeShared || !slices.Equal(r.Holders, []string{"a", "b"}) {
		t.Errorf("expected shared (a, b), got %s", r)
	}

	// every shared acquisition is counted
	again, err := r.Acquire(ModeShared, "a")
	if err != nil {
		t.Fatalf("repeated shared acquire failed: %v", err)
	}
	if !slices.Equal(again.Holders, []string{"a", "a", "b"}) || again.Count(ModeShared, "a") != 2 {
		t.Errorf("expected shared (a, a, b), got %s", again)
	}

	if _, err := r.Acquire(ModeExclusive, "c"); !errors.Is(err, ErrNotAdmissible) {
		t.Errorf("expected ErrNotAdmissible, got %v", err)
	}

	ex, err := Free().Acquire(ModeExclusive, "c")
	if err != nil {
		t.Fatalf("exclusive acquire on free record failed: %v", err)
	}
	if !ex.HeldBy(ModeExclusive, "c") {
		t.Errorf("expected exclusive (c), got %s", ex)
	}
	if _, err := ex.Acquire(ModeExclusive, "c"); !errors.Is(err, ErrNotAdmissible) {
		t.Errorf("exclusive re-acquire should not be admissible, got %v", err)
	}
}

// TestAcquireDoesNotAlias tests that transitions never modify the receiver
func TestAcquireDoesNotAlias(t *testing.T) {
	base := Shared("a", "c")
	holders := slices.Clone(base.Holders)

	if _, err := base.Acquire(ModeShared, "b"); err != nil {
		t.Fatal(err)
	}
	base.Release(ModeShared, "a")

	if !slices.Equal(base.Holders, holders) {
		t.Errorf("receiver was modified: %v", base.Holders)
	}
}

// TestSameHolderTwice tests that a holder keeps a shared lock until every acquisition is released
func TestSameHolderTwice(t *testing.T) {
	r := Free()
	for i := 0; i < 2; i++ {
		var err error
		if r, err = r.Acquire(ModeShared, "alice@host"); err != nil {
			t.Fatalf("shared acquire %d failed: %v", i, err)
		}
	}

	r, held := r.Release(ModeShared, "alice@host")
	if !held || !r.HeldBy(ModeShared, "alice@host") {
		t.Fatalf("expected alice@host to still hold the resource, got %s", r)
	}
	if r.Admits(ModeExclusive) {
		t.Error("exclusive must not be admitted while a shared lock is left")
	}

	r, held = r.Release(ModeShared, "alice@host")
	if !held || !r.IsFree() {
		t.Errorf("expected free record after the second release, got %s", r)
	}
}

// TestDistinct tests that every holder is reported once
func TestDistinct(t *testing.T) {
	r := Shared("b", "a", "b")
	if got := r.Distinct(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("unexpected distinct holders %v", got)
	}
	if r.Count(ModeShared, "b") != 2 || r.Count(ModeExclusive, "b") != 0 || r.Count(ModeShared, "c") != 0 {
		t.Error("Count returned the wrong number")
	}
}

// TestRelease tests the release transitions
func TestRelease(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		mode   Mode
		holder string
		want   Record
		held   bool
	}{
		{"exclusive by holder", Exclusive("a"), ModeExclusive, "a", Free(), true},
		{"exclusive by other", Exclusive("a"), ModeExclusive, "b", Exclusive("a"), false},
		{"exclusive with shared mode", Exclusive("a"), ModeShared, "a", Exclusive("a"), false},
		{"last shared holder", Shared("a"), ModeShared, "a", Free(), true},
		{"one of many", Shared("a", "b"), ModeShared, "a", Shared("b"), true},
		{"one of two by the same holder", Shared("a", "a", "b"), ModeShared, "a", Shared("a", "b"), true},
		{"shared with exclusive mode", Shared("a"), ModeExclusive, "a", Shared("a"), false},
		{"free", Free(), ModeShared, "a", Free(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, held := tt.record.Release(tt.mode, tt.holder)
			if held != tt.held {
				t.Errorf("held = %v, want %v", held, tt.held)
			}
			if got.Mode != tt.want.Mode || !slices.Equal(got.Holders, tt.want.Holders) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

// TestValidate tests the record invariants
func TestValidate(t *testing.T) {
	valid := []Record{Free(), Shared("a"), Shared("a", "b"), Shared("a", "a"), Exclusive("a")}
	for _, r := range valid {
		if err := r.Validate(); err != nil {
			t.Errorf("%s should be valid: %v", r, err)
		}
	}

	invalid := []Record{
		{Mode: ModeNone, Holders: []string{"a"}},
		{Mode: ModeShared},
		{Mode: ModeShared, Holders: []string{"b", "a"}},
		{Mode: ModeShared, Holders: []string{"a", ""}},
		{Mode: ModeExclusive},
		{Mode: ModeExclusive, Holders: []string{"a", "b"}},
		{Mode: ModeExclusive, Holders: []string{""}},
		{Mode: "both", Holders: []string{"a"}},
	}
	for _, r := range invalid {
		if err := r.Validate(); err == nil {
			t.Errorf("%+v should be invalid", r)
		}
	}
}

// TestCodec tests encoding and decoding of records
func TestCodec(t *testing.T) {
	value, err := Encode(Free())
	if err != nil || value != nil {
		t.Fatalf("free record should encode to nil, got %q, %v", value, err)
	}

	r := Shared("bob@node2", "alice@node1")
	value, err = Encode(r)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(value) != `{"mode":"shared","holders":["alice@node1","bob@node2"]}` {
		t.Errorf("unexpected encoding %s", value)
	}

	decoded, err := Decode(value)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Mode != ModeShared || !slices.Equal(decoded.Holders, r.Holders) {
		t.Errorf("decoded %s, want %s", decoded, r)
	}

	decoded, err = Decode(nil)
	if err != nil || !decoded.IsFree() {
		t.Errorf("nil should decode to free, got %s, %v", decoded, err)
	}

	if _, err := Encode(Record{Mode: ModeExclusive}); err == nil {
		t.Error("encoding an invalid record should fail")
	}
}

// TestDecodeCorrupt tests that unreadable values are reported as corrupt
func TestDecodeCorrupt(t *testing.T) {
	corrupt := []string{
		"inclusive_locked",
		`{"mode":"exclusive","holders":[]}`,
		`{"mode":"shared","holders":[]}`,
		`{"holders":["a"]}`,
		`{}`,
	}
	for _, value := range corrupt {
		if _, err := Decode([]byte(value)); !errors.Is(err, store.ErrCorruptRecord) {
			t.Errorf("Decode(%q): expected ErrCorruptRecord, got %v", value, err)
		}
	}
}

// TestKeyspace tests the mapping between resources and keys
func TestKeyspace(t *testing.T) {
	ks := NewKeyspace("")
	if ks.Prefix() != DefaultNamespace {
		t.Errorf("expected default namespace, got %q", ks.Prefix())
	}
	if key := ks.Key("42"); key != "server_coordinator:42" {
		t.Errorf("unexpected key %q", key)
	}
	if res, ok := ks.Resource("server_coordinator:42"); !ok || res != "42" {
		t.Errorf("unexpected resource %q (%v)", res, ok)
	}
	if _, ok := ks.Resource("other:42"); ok {
		t.Error("foreign key should not map to a resource")
	}
	if _, ok := ks.Resource("server_coordinator:"); ok {
		t.Error("bare prefix should not map to a resource")
	}

	custom := NewKeyspace("{lab}:")
	if key := custom.Key("gpu1"); key != "{lab}:gpu1" {
		t.Errorf("unexpected key %q", key)
	}
}

// TestHashTagged tests that namespaces are put into a single cluster slot
func TestHashTagged(t *testing.T) {
	tests := map[string]string{
		"":                    "{server_coordinator}:",
		"server_coordinator:": "{server_coordinator}:",
		"lab::":               "{lab}::",
		"lab":                 "{lab}",
		":":                   "{:}",
		"{lab}:":              "{lab}:",
		"srv{lab}:":           "srv{lab}:",
		"{}:":                 "{{}}:",
	}
	for in, want := range tests {
		if got := HashTagged(in); got != want {
			t.Errorf("HashTagged(%q) = %q, want %q", in, got, want)
		}
	}

	ks := NewKeyspace(HashTagged(""))
	if res, ok := ks.Resource(ks.Key("42")); !ok || res != "42" {
		t.Errorf("unexpected resource %q (%v)", res, ok)
	}
}

// TestModeOf tests the mapping from the exclusive flag to a mode
func TestModeOf(t *testing.T) {
	if ModeOf(true) != ModeExclusive || ModeOf(false) != ModeShared {
		t.Error("ModeOf returned the wrong mode")
	}
	if ModeNone.Valid() || !ModeShared.Valid() || !ModeExclusive.Valid() {
		t.Error("Valid returned the wrong result")
	}
	if ModeNone.String() != "free" {
		t.Errorf("unexpected string %q", ModeNone.String())
	}
}

package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}
	if len(clone) != len(original) {
		t.Fatalf("expected clone to have same size")
	}
}

func TestGetAndHas(t *testing.T) {
	m := Metadata{"type": "OrderPlaced", "empty": ""}

	if got := m.Get("type"); got != "OrderPlaced" {
		t.Fatalf("unexpected value: %q", got)
	}
	if got := m.Get("missing"); got != "" {
		t.Fatalf("expected empty string for missing key, got %q", got)
	}
	if !m.Has("empty") {
		t.Fatal("expected Has to report an empty-valued key as present")
	}
	if m.Has("missing") {
		t.Fatal("expected Has to report a missing key as absent")
	}
}

func TestWithDoesNotMutateBase(t *testing.T) {
	base := Metadata{"foo": "bar"}
	enriched := base.With("baz", "qux")

	if base.Has("baz") {
		t.Fatal("expected base map to remain unchanged")
	}
	if enriched["baz"] != "qux" {
		t.Fatal("expected enriched map to add entry")
	}
}

func TestWithAllMergesEntries(t *testing.T) {
	base := Metadata{"foo": "bar"}
	merged := base.WithAll(Metadata{"a": "1", "b": "2"})

	if len(merged) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(merged))
	}
	if len(base) != 1 {
		t.Fatal("expected base map to remain unchanged")
	}
}

func TestNewFromPairs(t *testing.T) {
	m := New("a", "1", "b", "2", "dangling")
	if len(m) != 2 {
		t.Fatalf("expected dangling key to be ignored, got %d entries", len(m))
	}
	if m["a"] != "1" || m["b"] != "2" {
		t.Fatalf("unexpected entries: %v", m)
	}
}

func TestWatermillRoundTrip(t *testing.T) {
	md := message.Metadata{"k": "v"}
	converted := FromWatermill(md)
	if converted["k"] != "v" {
		t.Fatalf("unexpected converted value: %q", converted["k"])
	}

	back := ToWatermill(converted)
	if back.Get("k") != "v" {
		t.Fatalf("unexpected round-tripped value: %q", back.Get("k"))
	}

	if FromWatermill(nil) == nil {
		t.Fatal("expected non-nil map for nil input")
	}
	if ToWatermill(nil) == nil {
		t.Fatal("expected non-nil map for nil input")
	}
}

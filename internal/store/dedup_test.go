package store

import (
	"fmt"
	"testing"
)

func TestDedupStoreHasAndAdd(t *testing.T) {
	ds := NewDedupStore(10)

	if ds.Has("track1") {
		t.Error("Has() = true for never-added ID")
	}

	ds.Add("track1")
	if !ds.Has("track1") {
		t.Error("Has() = false after Add()")
	}
	if ds.Size() != 1 {
		t.Errorf("Size() = %d, want 1", ds.Size())
	}

	// Adding twice must not grow the store.
	ds.Add("track1")
	if ds.Size() != 1 {
		t.Errorf("Size() after duplicate Add = %d, want 1", ds.Size())
	}
}

func TestDedupStoreIgnoresEmptyID(t *testing.T) {
	ds := NewDedupStore(10)
	ds.Add("")
	if ds.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after adding empty ID", ds.Size())
	}
}

func TestDedupStoreEvictsOldestAtCapacity(t *testing.T) {
	ds := NewDedupStore(3)

	for i := 0; i < 5; i++ {
		ds.Add(fmt.Sprintf("track%d", i))
	}

	if ds.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", ds.Size())
	}
	if ds.Has("track0") || ds.Has("track1") {
		t.Error("oldest entries should have been evicted")
	}
	for i := 2; i < 5; i++ {
		if !ds.Has(fmt.Sprintf("track%d", i)) {
			t.Errorf("track%d should still be present", i)
		}
	}
}

func TestDedupStoreLoadReplacesContents(t *testing.T) {
	ds := NewDedupStore(10)
	ds.Add("old")

	ds.Load([]string{"a", "b", "", "c"})

	if ds.Has("old") {
		t.Error("Load() should drop previous contents")
	}
	if ds.Size() != 3 {
		t.Errorf("Size() = %d, want 3 (empty IDs skipped)", ds.Size())
	}
	for _, id := range []string{"a", "b", "c"} {
		if !ds.Has(id) {
			t.Errorf("Has(%q) = false after Load", id)
		}
	}
}

func BenchmarkDedupStoreHas(b *testing.B) {
	ds := NewDedupStore(4096)
	for i := 0; i < 1000; i++ {
		ds.Add(fmt.Sprintf("track%d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ds.Has("track500")
	}
}

func BenchmarkDedupStoreHasMiss(b *testing.B) {
	ds := NewDedupStore(4096)
	for i := 0; i < 1000; i++ {
		ds.Add(fmt.Sprintf("track%d", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ds.Has("never-added")
	}
}

package db

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "murmur.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFetchLatestNewestFirst(t *testing.T) {
	store := openTestStore(t)

	for _, text := range []string{"A", "B", "C"} {
		if err := store.Save(text); err != nil {
			t.Fatalf("save %q: %v", text, err)
		}
	}

	texts, err := store.FetchLatest(2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(texts) != 2 || texts[0] != "C" || texts[1] != "B" {
		t.Fatalf("FetchLatest(2) = %v, want [C B]", texts)
	}
}

func TestFetchLatestEmptyStore(t *testing.T) {
	store := openTestStore(t)

	texts, err := store.FetchLatest(5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(texts) != 0 {
		t.Fatalf("got %d texts from empty store", len(texts))
	}
}

func TestFetchLatestLimitLargerThanStore(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save("only"); err != nil {
		t.Fatalf("save: %v", err)
	}

	texts, err := store.FetchLatest(10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(texts) != 1 || texts[0] != "only" {
		t.Fatalf("FetchLatest(10) = %v", texts)
	}
}

func TestSaveCreatedAtStrictlyIncreasing(t *testing.T) {
	store := openTestStore(t)

	// Rapid inserts can land on the same wall-clock tick; insertion order
	// must still be recoverable from createdAt.
	for _, text := range []string{"first", "second", "third", "fourth"} {
		if err := store.Save(text); err != nil {
			t.Fatalf("save %q: %v", text, err)
		}
	}

	records, err := store.Latest(10)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	want := []string{"fourth", "third", "second", "first"}
	for i, r := range records {
		if r.Text != want[i] {
			t.Fatalf("records[%d].Text = %q, want %q", i, r.Text, want[i])
		}
		if r.ID == "" {
			t.Fatalf("records[%d] has empty id", i)
		}
		if i > 0 && !records[i-1].CreatedAt.After(r.CreatedAt) {
			t.Fatalf("createdAt not strictly increasing at %d", i)
		}
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "murmur.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Save("x"); err != nil {
		t.Fatalf("save: %v", err)
	}
}

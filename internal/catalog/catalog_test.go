package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openMemory(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalog(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	t.Run("initialization", func(t *testing.T) {
		c := openMemory(t)
		stats, err := c.Stats()
		if err != nil {
			t.Fatalf("failed to get stats: %v", err)
		}
		if stats.ObjectCount != 0 || stats.TombstoneCount != 0 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("record and lookup", func(t *testing.T) {
		c := openMemory(t)
		e := Entry{UUID: a, Path: "main/.root", Type: "root", Name: "main", Version: 3, FileMtime: 42}
		if err := c.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}

		got, err := c.Lookup(a)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if got.Path != e.Path || got.Type != "root" || got.Version != 3 || got.FileMtime != 42 {
			t.Errorf("entry = %+v", got)
		}
		if got.SavedAt.IsZero() || got.Deleted() {
			t.Errorf("saved_at/deleted_at = %v/%v", got.SavedAt, got.DeletedAt)
		}

		if _, err := c.Lookup(b); !errors.Is(err, ErrNotFound) {
			t.Errorf("Lookup unknown = %v, want ErrNotFound", err)
		}

		byPath, err := c.LookupPath("main/.root")
		if err != nil || byPath.UUID != a {
			t.Errorf("LookupPath = %+v, %v", byPath, err)
		}
	})

	t.Run("record replaces", func(t *testing.T) {
		c := openMemory(t)
		_ = c.Record(Entry{UUID: a, Path: "main/old.note", Type: "asset", Version: 1})
		_ = c.Record(Entry{UUID: a, Path: "main/new.note", Type: "asset", Version: 2})

		all, err := c.All()
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(all) != 1 || all[0].Path != "main/new.note" || all[0].Version != 2 {
			t.Errorf("All = %+v", all)
		}
		if _, err := c.LookupPath("main/old.note"); !errors.Is(err, ErrNotFound) {
			t.Errorf("old path still present: %v", err)
		}
	})

	t.Run("tombstone", func(t *testing.T) {
		c := openMemory(t)
		_ = c.Record(Entry{UUID: a, Path: "main/a.note", Type: "asset"})
		_ = c.Record(Entry{UUID: b, Path: "main/b.note", Type: "asset"})

		if err := c.Tombstone(a); err != nil {
			t.Fatalf("Tombstone: %v", err)
		}
		if err := c.Tombstone(uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("Tombstone unknown = %v, want ErrNotFound", err)
		}

		got, err := c.Lookup(a)
		if err != nil || !got.Deleted() {
			t.Errorf("Lookup tombstoned = %+v, %v", got, err)
		}
		all, _ := c.All()
		if len(all) != 1 || all[0].UUID != b {
			t.Errorf("All = %+v", all)
		}
		tombs, _ := c.Tombstones()
		if len(tombs) != 1 || tombs[0].UUID != a {
			t.Errorf("Tombstones = %+v", tombs)
		}

		stats, _ := c.Stats()
		if stats.ObjectCount != 1 || stats.TombstoneCount != 1 || stats.TypeCounts["asset"] != 1 {
			t.Errorf("stats = %+v", stats)
		}

		// Recording again revives it.
		_ = c.Record(Entry{UUID: a, Path: "main/a.note", Type: "asset"})
		if got, _ := c.Lookup(a); got.Deleted() {
			t.Error("Record did not clear tombstone")
		}

		if err := c.Forget(a); err != nil {
			t.Fatalf("Forget: %v", err)
		}
		if _, err := c.Lookup(a); !errors.Is(err, ErrNotFound) {
			t.Errorf("Lookup after Forget = %v", err)
		}
	})
}

func TestCheckStaleness(t *testing.T) {
	vault := t.TempDir()
	c, err := Open(vault)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	if _, err := os.Stat(filepath.Join(vault, Dir, FileName)); err != nil {
		t.Fatalf("catalog file not created: %v", err)
	}

	write := func(rel string) int64 {
		t.Helper()
		p := filepath.Join(vault, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		st, _ := os.Stat(p)
		return st.ModTime().UnixNano()
	}

	fresh := uuid.New()
	edited := uuid.New()
	gone := uuid.New()
	_ = c.Record(Entry{UUID: fresh, Path: "main/fresh.note", Type: "asset", FileMtime: write("main/fresh.note")})
	_ = c.Record(Entry{UUID: edited, Path: "main/edited.note", Type: "asset", FileMtime: write("main/edited.note")})
	_ = c.Record(Entry{UUID: gone, Path: "main/gone.note", Type: "asset", FileMtime: 1})

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(vault, "main", "edited.note"), later, later); err != nil {
		t.Fatal(err)
	}

	info, err := c.CheckStaleness(vault)
	if err != nil {
		t.Fatalf("CheckStaleness: %v", err)
	}
	if !info.IsStale || info.TotalFiles != 3 || info.CheckedFiles != 2 {
		t.Errorf("info = %+v", info)
	}
	if len(info.StaleFiles) != 1 || info.StaleFiles[0] != "main/edited.note" {
		t.Errorf("StaleFiles = %v", info.StaleFiles)
	}
	if len(info.MissingFiles) != 1 || info.MissingFiles[0] != "main/gone.note" {
		t.Errorf("MissingFiles = %v", info.MissingFiles)
	}
}

func TestLookupMany(t *testing.T) {
	c := openMemory(t)
	a, b, missing := uuid.New(), uuid.New(), uuid.New()
	for _, e := range []Entry{
		{UUID: a, Path: "main/.root", Type: "root", Name: "main"},
		{UUID: b, Path: "main/a.note", Type: "asset", Name: "a.note"},
	} {
		if err := c.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := c.Tombstone(b); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}

	got, err := c.LookupMany([]uuid.UUID{a, b, missing})
	if err != nil {
		t.Fatalf("LookupMany: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[a].Path != "main/.root" || got[a].Deleted() {
		t.Errorf("a = %+v", got[a])
	}
	if !got[b].Deleted() {
		t.Errorf("b should be a tombstone: %+v", got[b])
	}

	empty, err := c.LookupMany(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("LookupMany(nil) = %v, %v", empty, err)
	}
}

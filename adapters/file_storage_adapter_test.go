package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestFileStorageAdapter_SetGet(t *testing.T) {
	fs := afero.NewMemMapFs()
	adapter := NewFileStorageAdapterFs(fs, "data/beacon.json")

	if err := adapter.Set("gameAnalytics", `[{"id":"1"}]`); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	// A fresh adapter on the same file sees the persisted value.
	reopened := NewFileStorageAdapterFs(fs, "data/beacon.json")
	v, ok, err := reopened.Get("gameAnalytics")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !ok || v != `[{"id":"1"}]` {
		t.Fatalf("unexpected value %q (found=%v)", v, ok)
	}
}

func TestFileStorageAdapter_GetNonExistent(t *testing.T) {
	adapter := NewFileStorageAdapterFs(afero.NewMemMapFs(), "nonexistent.json")
	_, ok, err := adapter.Get("anything")
	if err != nil {
		t.Fatalf("expected no error for nonexistent file: %v", err)
	}
	if ok {
		t.Fatal("expected key to be missing")
	}
}

func TestFileStorageAdapter_Remove(t *testing.T) {
	fs := afero.NewMemMapFs()
	adapter := NewFileStorageAdapterFs(fs, "store.json")
	adapter.Set("a", "1")
	adapter.Set("b", "2")

	if err := adapter.Remove("a"); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	if err := adapter.Remove("a"); err != nil {
		t.Fatalf("removing a missing key should not fail: %v", err)
	}

	keys, err := NewFileStorageAdapterFs(fs, "store.json").Keys()
	if err != nil {
		t.Fatalf("failed to list keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("expected only key b, got %v", keys)
	}
}

func TestFileStorageAdapter_NoTempFileLeft(t *testing.T) {
	fs := afero.NewMemMapFs()
	adapter := NewFileStorageAdapterFs(fs, "store.json")
	adapter.Set("a", "1")

	if exists, _ := afero.Exists(fs, "store.json.tmp"); exists {
		t.Fatal("expected temporary file to be renamed away")
	}
}

func TestFileStorageAdapter_LoadInvalidJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "invalid.json", []byte("invalid json"), 0o644)

	adapter := NewFileStorageAdapterFs(fs, "invalid.json")
	if _, _, err := adapter.Get("a"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestFileStorageAdapter_SetError(t *testing.T) {
	adapter := NewFileStorageAdapterFs(afero.NewReadOnlyFs(afero.NewMemMapFs()), "ro/store.json")
	if err := adapter.Set("a", "1"); err == nil {
		t.Fatal("expected error on read-only filesystem")
	}
	if _, ok, _ := adapter.Get("a"); ok {
		t.Fatal("failed write must not be visible")
	}
}

func TestFileStorageAdapter_OsFs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.json")
	adapter := NewFileStorageAdapter(path)
	if err := adapter.Set("k", "v"); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

package client

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notekeeper", "token")
	store := NewFileStore(path)

	token, err := store.Load()
	if err != nil || token != "" {
		t.Fatalf("Load on missing file = (%q, %v), want empty", token, err)
	}

	if err := store.Save("jwt-value"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	token, err = store.Load()
	if err != nil || token != "jwt-value" {
		t.Errorf("Load = (%q, %v), want jwt-value", token, err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("perm = %o, want 600", perm)
		}
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
	if token, _ := store.Load(); token != "" {
		t.Errorf("Load after Clear = %q", token)
	}
}

func TestFileStore_SaveTightensExistingPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := NewFileStore(path).Save("new"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, _ := os.Stat(path)
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestMemoryStore(t *testing.T) {
	var store MemoryStore
	_ = store.Save("t1")
	if token, _ := store.Load(); token != "t1" {
		t.Errorf("Load = %q", token)
	}
	_ = store.Clear()
	if token, _ := store.Load(); token != "" {
		t.Errorf("Load after Clear = %q", token)
	}
}

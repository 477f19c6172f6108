package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"loanadmin.org/internal/store"
	"loanadmin.org/internal/store/storetest"
)

func TestFileStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.KV {
		s, err := Open(t.TempDir())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	})
}

func TestFileStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := s.Put(ctx, "branches", []byte(`[]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "data", "branches.json"))
	if err != nil {
		t.Fatalf("expected branches.json: %v", err)
	}
	if string(raw) != `[]` {
		t.Fatalf("unexpected contents %q", raw)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "data"))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, key := range []string{"../escape", "a/b", ".hidden", ""} {
		if err := s.Put(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for blank dir")
	}
}

package watchlist

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	fs := &FileStore{Path: filepath.Join(t.TempDir(), "nope", "streamers.json")}
	got, err := fs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load() = %v, want empty", got)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "streamers.json")
	fs := &FileStore{Path: path}
	ctx := context.Background()

	want := []string{"alice", "bob"}
	if err := fs.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := fs.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %v, want %v", got, want)
	}

	// Overwrites wholesale.
	if err := fs.Save(ctx, nil); err != nil {
		t.Fatalf("Save(nil) error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(raw) != "[]" {
		t.Errorf("file = %q, want []", raw)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamers.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	fs := &FileStore{Path: path}
	if _, err := fs.Load(context.Background()); err == nil {
		t.Error("Load() on corrupt file should fail")
	}
}

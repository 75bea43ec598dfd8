package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps the watchlist as a JSON array in a single file.
type FileStore struct {
	Path string
}

// Load returns the stored list; a missing file is an empty watchlist.
func (f *FileStore) Load(_ context.Context) ([]string, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	var logins []string
	if err := json.Unmarshal(b, &logins); err != nil {
		return nil, fmt.Errorf("parse watchlist %s: %w", f.Path, err)
	}
	return logins, nil
}

// Save writes the list atomically (temp file + rename), creating the directory if needed.
func (f *FileStore) Save(_ context.Context, logins []string) error {
	if logins == nil {
		logins = []string{}
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create watchlist dir: %w", err)
	}
	b, err := json.MarshalIndent(logins, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".streamers-*.json")
	if err != nil {
		return fmt.Errorf("create temp watchlist: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write watchlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close watchlist: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace watchlist: %w", err)
	}
	return nil
}

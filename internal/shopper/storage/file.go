package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type fileEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

// File persists one JSON document per key under dir, so state survives a
// restart of the shopper process.
type File struct {
	dir string
	now func() time.Time
}

func NewFile(dir string) (*File, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &File{dir: dir, now: time.Now}, nil
}

func (f *File) path(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
	return filepath.Join(f.dir, name+".json")
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	raw, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var entry fileEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if entry.ExpiresAt != nil && !f.now().Before(*entry.ExpiresAt) {
		_ = os.Remove(f.path(key))
		return nil, ErrNotFound
	}
	return entry.Value, nil
}

// Set writes through a temp file and rename so a crash never leaves a
// half-written document behind.
func (f *File) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %s is not json", key)
	}
	entry := fileEntry{Value: value}
	if ttl > 0 {
		expires := f.now().Add(ttl)
		entry.ExpiresAt = &expires
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

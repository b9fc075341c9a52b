package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Backend persists whole collections as opaque snapshots.
type Backend interface {
	Save(ctx context.Context, collection string, data []byte) error
	// Load returns nil data for a collection that was never saved.
	Load(ctx context.Context, collection string) ([]byte, error)
	Close() error
}

// FileBackend writes one JSON file per collection under a directory.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(collection string) string {
	return filepath.Join(b.dir, collection+".json")
}

// Save replaces the collection file atomically.
func (b *FileBackend) Save(_ context.Context, collection string, data []byte) error {
	tmp, err := os.CreateTemp(b.dir, collection+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path(collection))
}

func (b *FileBackend) Load(_ context.Context, collection string) ([]byte, error) {
	data, err := os.ReadFile(b.path(collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (b *FileBackend) Close() error {
	return nil
}

// NopBackend keeps state in memory only.
type NopBackend struct{}

func (NopBackend) Save(context.Context, string, []byte) error   { return nil }
func (NopBackend) Load(context.Context, string) ([]byte, error) { return nil, nil }
func (NopBackend) Close() error                                 { return nil }

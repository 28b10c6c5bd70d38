// Package local stores journal records as files on the local filesystem.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/davidthor/platctl/pkg/journal/backend"
)

func init() {
	backend.Register("local", NewBackend)
}

// Backend keeps one file per key below a root directory.
type Backend struct {
	root string
}

// NewBackend creates a local backend. The "path" option defaults to
// ~/.platctl/journal.
func NewBackend(config map[string]string) (backend.Backend, error) {
	root := config["path"]
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		root = filepath.Join(home, ".platctl", "journal")
	}
	if strings.HasPrefix(root, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		root = filepath.Join(home, root[2:])
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &Backend{root: root}, nil
}

func (b *Backend) Type() string { return "local" }

// Root returns the directory records are written under.
func (b *Backend) Root() string { return b.root }

func (b *Backend) file(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.file(key))
	if os.IsNotExist(err) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put writes through a temporary file and renames it so readers never see a
// partial record.
func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	path := b.file(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := os.Remove(b.file(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	dir := b.file(prefix)
	var keys []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(b.file(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

package kvstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirrivault/sirrivault/internal/errs"
)

// File is the single-device default Store: one file per record under
// root/<namespace>/<key>.json. Keys are hex-encoded on disk so arbitrary key
// strings cannot escape the namespace directory. Writes go through a temp
// file and rename, so a crash never leaves a torn record behind.
type File struct {
	root string
	mu   sync.Mutex
}

// NewFile opens (creating if needed) a file store rooted at dir.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	return &File{root: dir}, nil
}

func (f *File) path(namespace, key string) string {
	return filepath.Join(f.root, namespace, hex.EncodeToString([]byte(key))+".json")
}

func (f *File) Get(_ context.Context, namespace, key string) ([]byte, error) {
	b, err := os.ReadFile(f.path(namespace, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	return b, nil
}

func (f *File) Put(_ context.Context, namespace, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Join(f.root, namespace)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	if err := os.Rename(tmpName, f.path(namespace, key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	return nil
}

func (f *File) Delete(_ context.Context, namespace, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(namespace, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.ErrNotFound
		}
		return fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	return nil
}

func (f *File) ListKeys(_ context.Context, namespace string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.root, namespace))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", errs.ErrStorage, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".put-") {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue // foreign file, not ours
		}
		keys = append(keys, string(raw))
	}
	return keys, nil
}

var _ Store = (*File)(nil)

// Package file stores each key as <key>.json inside a directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/store"
)

const ext = ".json"

// Store is a directory-backed KV. A single process-wide mutex serialises writers;
// readers never observe a partially written file because writes go through rename.
type Store struct {
	dir string
	mu  sync.RWMutex
}

var _ store.KV = (*Store)(nil)

// Open prepares dir (creating it if needed) and returns a store rooted there.
func Open(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("file store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("file store: invalid key %q", key)
	}
	return filepath.Join(s.dir, key+ext), nil
}

func (s *Store) Get(ctx context.Context, key string) (_ []byte, err error) {
	defer obs.ObserveStore("file", "get", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(key)
}

func (s *Store) read(key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	return data, err
}

func (s *Store) Put(ctx context.Context, key string, value []byte) (err error) {
	defer obs.ObserveStore("file", "put", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(key, value)
}

func (s *Store) write(key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer obs.ObserveStore("file", "delete", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) (_ []string, err error) {
	defer obs.ObserveStore("file", "keys", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ext))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFunc) (err error) {
	defer obs.ObserveStore("file", "update", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.read(key)
	ok := true
	if errors.Is(err, store.ErrNotFound) {
		cur, ok, err = nil, false, nil
	}
	if err != nil {
		return err
	}
	next, err := fn(cur, ok)
	if err != nil {
		return err
	}
	return s.write(key, next)
}

// Ping checks that the directory is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

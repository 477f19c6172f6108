// Package store is the persistence boundary: a key/value store holding one JSON
// document per collection. Backends live in sub-packages.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"loanadmin.org/internal/obs"
)

var (
	// ErrNotFound is returned by Get when the key has never been written.
	ErrNotFound = errors.New("store: key not found")
	// ErrConflict is returned when an optimistic update lost its race too many times.
	ErrConflict = errors.New("store: concurrent update conflict")
)

// UpdateFunc receives the current value (ok=false when absent) and returns the
// value to write. Returning an error aborts the update without writing.
type UpdateFunc func(cur []byte, ok bool) ([]byte, error)

// KV is the storage contract shared by all backends.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	// Update performs an atomic read-modify-write of a single key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Memory is a process-local KV. Values are copied on the way in and out.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ KV = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) (_ []byte, err error) {
	defer obs.ObserveStore("memory", "get", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) (err error) {
	defer obs.ObserveStore("memory", "put", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = clone(value)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) (err error) {
	defer obs.ObserveStore("memory", "delete", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys(ctx context.Context) (_ []string, err error) {
	defer obs.ObserveStore("memory", "keys", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Update(ctx context.Context, key string, fn UpdateFunc) (err error) {
	defer obs.ObserveStore("memory", "update", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	next, err := fn(clone(cur), ok)
	if err != nil {
		return err
	}
	m.data[key] = clone(next)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

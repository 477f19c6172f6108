// Package repo turns a store.KV key into a typed, ordered collection of records.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/ids"
	"loanadmin.org/internal/store"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = apperr.ErrNotFound
	// ErrInvalidPatch is returned when an update payload cannot be applied.
	ErrInvalidPatch = fmt.Errorf("%w: invalid patch", apperr.ErrInvalidInput)
	// ErrCorrupt is returned when a stored collection cannot be decoded.
	ErrCorrupt = errors.New("stored collection is corrupt")
)

// Meta is embedded by every stored record.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record gives generic code access to the embedded metadata.
func (m *Meta) Record() *Meta { return m }

// Record is satisfied by pointers to types embedding Meta.
type Record[T any] interface {
	*T
	Record() *Meta
}

// Repository is the per-entity method set callers depend on.
type Repository[T any] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, v T) (T, error)
	Update(ctx context.Context, id string, patch any) (T, error)
	Delete(ctx context.Context, id string) error
}

// Action names the kind of write reported to hooks.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes one record-level write. Before is nil on create, After is nil on delete.
type Change struct {
	Collection string
	Action     Action
	ID         string
	Before     json.RawMessage
	After      json.RawMessage
}

// Hook observes committed writes.
type Hook func(ctx context.Context, c Change)

// Collection stores all records of one type as a JSON array under a single key.
type Collection[T any, P Record[T]] struct {
	kv    store.KV
	key   string
	now   func() time.Time
	hooks []Hook
}

var _ Repository[Meta] = (*Collection[Meta, *Meta])(nil)

// NewCollection binds a collection to key.
func NewCollection[T any, P Record[T]](kv store.KV, key string) *Collection[T, P] {
	return &Collection[T, P]{
		kv:  kv,
		key: key,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source.
func (c *Collection[T, P]) WithClock(now func() time.Time) *Collection[T, P] {
	c.now = now
	return c
}

// WithHook registers h to be called after every successful write.
func (c *Collection[T, P]) WithHook(h Hook) *Collection[T, P] {
	if h != nil {
		c.hooks = append(c.hooks, h)
	}
	return c
}

// Name is the storage key of the collection.
func (c *Collection[T, P]) Name() string { return c.key }

func (c *Collection[T, P]) decode(raw []byte) ([]T, error) {
	items := []T{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, c.key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (c *Collection[T, P]) List(ctx context.Context) ([]T, error) {
	raw, err := c.kv.Get(ctx, c.key)
	if errors.Is(err, store.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	return c.decode(raw)
}

func (c *Collection[T, P]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	items, err := c.List(ctx)
	if err != nil {
		return zero, err
	}
	for _, item := range items {
		if P(&item).Record().ID == id {
			return item, nil
		}
	}
	return zero, fmt.Errorf("%w: %s %s", ErrNotFound, c.key, id)
}

// Find returns the first record matching pred.
func (c *Collection[T, P]) Find(ctx context.Context, pred func(T) bool) (T, bool, error) {
	var zero T
	items, err := c.List(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, item := range items {
		if pred(item) {
			return item, true, nil
		}
	}
	return zero, false, nil
}

// Filter returns every record matching pred, in stored order.
func (c *Collection[T, P]) Filter(ctx context.Context, pred func(T) bool) ([]T, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []T{}
	for _, item := range items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Create appends v with a fresh identifier and timestamps.
func (c *Collection[T, P]) Create(ctx context.Context, v T) (T, error) {
	now := c.now()
	meta := P(&v).Record()
	meta.ID = ids.NewAt(now)
	meta.CreatedAt = now
	meta.UpdatedAt = now

	var after []byte
	err := c.kv.Update(ctx, c.key, func(cur []byte, _ bool) ([]byte, error) {
		items, err := c.decode(cur)
		if err != nil {
			return nil, err
		}
		after, err = json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return json.Marshal(append(items, v))
	})
	if err != nil {
		var zero T
		return zero, err
	}
	c.notify(ctx, Change{Collection: c.key, Action: ActionCreate, ID: meta.ID, After: after})
	return v, nil
}

// Update merges patch into the record as a JSON merge patch (RFC 7386). Only
// members present in patch change; id and created_at are preserved.
func (c *Collection[T, P]) Update(ctx context.Context, id string, patch any) (T, error) {
	var zero T
	patchJSON, err := marshalPatch(patch)
	if err != nil {
		return zero, err
	}

	var (
		updated       T
		before, after []byte
	)
	err = c.kv.Update(ctx, c.key, func(cur []byte, _ bool) ([]byte, error) {
		items, err := c.decode(cur)
		if err != nil {
			return nil, err
		}
		idx := c.indexOf(items, id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, c.key, id)
		}
		before, err = json.Marshal(items[idx])
		if err != nil {
			return nil, err
		}
		merged, err := jsonpatch.MergePatch(before, patchJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		var next T
		if err := json.Unmarshal(merged, &next); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		prev := P(&items[idx]).Record()
		meta := P(&next).Record()
		meta.ID = prev.ID
		meta.CreatedAt = prev.CreatedAt
		meta.UpdatedAt = c.now()
		items[idx] = next
		updated = next
		after, err = json.Marshal(next)
		if err != nil {
			return nil, err
		}
		return json.Marshal(items)
	})
	if err != nil {
		return zero, err
	}
	c.notify(ctx, Change{Collection: c.key, Action: ActionUpdate, ID: id, Before: before, After: after})
	return updated, nil
}

// Delete removes exactly the record with id, keeping the order of the rest.
func (c *Collection[T, P]) Delete(ctx context.Context, id string) error {
	var before []byte
	err := c.kv.Update(ctx, c.key, func(cur []byte, _ bool) ([]byte, error) {
		items, err := c.decode(cur)
		if err != nil {
			return nil, err
		}
		idx := c.indexOf(items, id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, c.key, id)
		}
		before, err = json.Marshal(items[idx])
		if err != nil {
			return nil, err
		}
		items = append(items[:idx], items[idx+1:]...)
		return json.Marshal(items)
	})
	if err != nil {
		return err
	}
	c.notify(ctx, Change{Collection: c.key, Action: ActionDelete, ID: id, Before: before})
	return nil
}

// Mutate hands the whole collection to fn and stores what it returns, atomically.
// Records fn appends without an id are stamped like Create; hooks see one change
// per record that was added, modified or removed.
func (c *Collection[T, P]) Mutate(ctx context.Context, fn func([]T) ([]T, error)) ([]T, error) {
	var (
		result  []T
		changes []Change
	)
	err := c.kv.Update(ctx, c.key, func(cur []byte, _ bool) ([]byte, error) {
		items, err := c.decode(cur)
		if err != nil {
			return nil, err
		}
		prev, err := c.snapshot(items)
		if err != nil {
			return nil, err
		}
		next, err := fn(items)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []T{}
		}
		now := c.now()
		for i := range next {
			meta := P(&next[i]).Record()
			if meta.ID == "" {
				meta.ID = ids.NewAt(now)
				meta.CreatedAt = now
				meta.UpdatedAt = now
			}
		}
		changes, err = c.diff(prev, next, now)
		if err != nil {
			return nil, err
		}
		result = next
		return json.Marshal(next)
	})
	if err != nil {
		return nil, err
	}
	for _, ch := range changes {
		c.notify(ctx, ch)
	}
	return result, nil
}

// snapshot is the encoded form of a collection, kept in stored order.
type snapshot struct {
	order []string
	raw   map[string][]byte
}

func (c *Collection[T, P]) snapshot(items []T) (snapshot, error) {
	snap := snapshot{order: make([]string, 0, len(items)), raw: make(map[string][]byte, len(items))}
	for i := range items {
		raw, err := json.Marshal(items[i])
		if err != nil {
			return snapshot{}, err
		}
		id := P(&items[i]).Record().ID
		snap.order = append(snap.order, id)
		snap.raw[id] = raw
	}
	return snap, nil
}

// diff stamps UpdatedAt on modified records and reports per-record changes.
func (c *Collection[T, P]) diff(prev snapshot, next []T, now time.Time) ([]Change, error) {
	var changes []Change
	seen := make(map[string]struct{}, len(next))
	for i := range next {
		meta := P(&next[i]).Record()
		seen[meta.ID] = struct{}{}
		raw, err := json.Marshal(next[i])
		if err != nil {
			return nil, err
		}
		old, existed := prev.raw[meta.ID]
		switch {
		case !existed:
			changes = append(changes, Change{Collection: c.key, Action: ActionCreate, ID: meta.ID, After: raw})
		case string(old) != string(raw):
			meta.UpdatedAt = now
			if raw, err = json.Marshal(next[i]); err != nil {
				return nil, err
			}
			changes = append(changes, Change{Collection: c.key, Action: ActionUpdate, ID: meta.ID, Before: old, After: raw})
		}
	}
	for _, id := range prev.order {
		if _, ok := seen[id]; !ok {
			changes = append(changes, Change{Collection: c.key, Action: ActionDelete, ID: id, Before: prev.raw[id]})
		}
	}
	return changes, nil
}

func (c *Collection[T, P]) indexOf(items []T, id string) int {
	for i := range items {
		if P(&items[i]).Record().ID == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T, P]) notify(ctx context.Context, ch Change) {
	for _, h := range c.hooks {
		h(ctx, ch)
	}
}

func marshalPatch(patch any) ([]byte, error) {
	var raw []byte
	switch p := patch.(type) {
	case nil:
		return nil, fmt.Errorf("%w: patch is required", ErrInvalidPatch)
	case []byte:
		raw = p
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(patch)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		raw = b
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: patch must be a JSON object", ErrInvalidPatch)
	}
	return raw, nil
}

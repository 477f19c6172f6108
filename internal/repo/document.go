package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"loanadmin.org/internal/store"
)

// Document stores a single settings object under one key. Reads overlay the
// stored value on the defaults so fields added later still get sane values.
type Document[T any] struct {
	kv       store.KV
	key      string
	defaults func() T
	hooks    []Hook
}

// NewDocument binds a document to key. defaults must return a fresh value on each call.
func NewDocument[T any](kv store.KV, key string, defaults func() T) *Document[T] {
	if defaults == nil {
		defaults = func() T { var zero T; return zero }
	}
	return &Document[T]{kv: kv, key: key, defaults: defaults}
}

// WithHook registers h to be called after every successful write.
func (d *Document[T]) WithHook(h Hook) *Document[T] {
	if h != nil {
		d.hooks = append(d.hooks, h)
	}
	return d
}

// Name is the storage key of the document.
func (d *Document[T]) Name() string { return d.key }

// Defaults returns the built-in value.
func (d *Document[T]) Defaults() T { return d.defaults() }

func (d *Document[T]) merged(raw []byte) (T, error) {
	out := d.defaults()
	if len(raw) == 0 {
		return out, nil
	}
	base, err := json.Marshal(out)
	if err != nil {
		return out, err
	}
	doc, err := jsonpatch.MergePatch(base, raw)
	if err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrCorrupt, d.key, err)
	}
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrCorrupt, d.key, err)
	}
	return v, nil
}

// Get returns the stored value merged over the defaults.
func (d *Document[T]) Get(ctx context.Context) (T, error) {
	raw, err := d.kv.Get(ctx, d.key)
	if errors.Is(err, store.ErrNotFound) {
		return d.defaults(), nil
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return d.merged(raw)
}

// Save replaces the stored value.
func (d *Document[T]) Save(ctx context.Context, v T) (T, error) {
	return d.Modify(ctx, func(T) (T, error) { return v, nil })
}

// Modify atomically reads the current value, applies fn and stores the result.
func (d *Document[T]) Modify(ctx context.Context, fn func(cur T) (T, error)) (T, error) {
	var (
		next          T
		before, after []byte
		existed       bool
	)
	err := d.kv.Update(ctx, d.key, func(cur []byte, ok bool) ([]byte, error) {
		existed = ok
		before = cur
		value, err := d.merged(cur)
		if err != nil {
			return nil, err
		}
		if next, err = fn(value); err != nil {
			return nil, err
		}
		after, err = json.Marshal(next)
		return after, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	action := ActionUpdate
	if !existed {
		action = ActionCreate
		before = nil
	}
	for _, h := range d.hooks {
		h(ctx, Change{Collection: d.key, Action: action, ID: d.key, Before: before, After: after})
	}
	return next, nil
}

// Reset removes the stored value so reads return the defaults again.
func (d *Document[T]) Reset(ctx context.Context) error {
	return d.kv.Delete(ctx, d.key)
}

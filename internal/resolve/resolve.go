// Package resolve holds the pure lookups used to follow weak references between collections.
package resolve

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ChildrenOf returns the items whose parent key equals parentID, in input order.
// The result is never nil; a blank parentID matches nothing.
func ChildrenOf[T any](items []T, parentKey func(T) string, parentID string) []T {
	out := []T{}
	if strings.TrimSpace(parentID) == "" {
		return out
	}
	for _, item := range items {
		if parentKey(item) == parentID {
			out = append(out, item)
		}
	}
	return out
}

// ResolveName finds the display name of the item with id. ok is false for
// orphaned references so callers decide how to render them.
func ResolveName[T any](items []T, id string, idOf, nameOf func(T) string) (name string, ok bool) {
	if id == "" {
		return "", false
	}
	for _, item := range items {
		if idOf(item) == id {
			return nameOf(item), true
		}
	}
	return "", false
}

// NameOr is ResolveName with a fallback label for unresolved ids.
func NameOr[T any](items []T, id, fallback string, idOf, nameOf func(T) string) string {
	if name, ok := ResolveName(items, id, idOf, nameOf); ok {
		return name
	}
	return fallback
}

// Index maps identifiers to items for screens that resolve many names at once.
type Index[T any] struct {
	byID   map[string]T
	nameOf func(T) string
}

// NewIndex builds an index over items. Later duplicates of an id win.
func NewIndex[T any](items []T, idOf, nameOf func(T) string) *Index[T] {
	idx := &Index[T]{byID: make(map[string]T, len(items)), nameOf: nameOf}
	for _, item := range items {
		idx.byID[idOf(item)] = item
	}
	return idx
}

// Get returns the item with id.
func (x *Index[T]) Get(id string) (T, bool) {
	item, ok := x.byID[id]
	return item, ok
}

// Name returns the display name for id.
func (x *Index[T]) Name(id string) (string, bool) {
	item, ok := x.byID[id]
	if !ok {
		return "", false
	}
	return x.nameOf(item), true
}

// NameOr returns the display name for id or fallback.
func (x *Index[T]) NameOr(id, fallback string) string {
	if name, ok := x.Name(id); ok {
		return name
	}
	return fallback
}

// Len reports the number of indexed items.
func (x *Index[T]) Len() int { return len(x.byID) }

// Search returns the items whose label fuzzily contains query, closest first.
// Case and diacritics are ignored. A blank query returns all items.
func Search[T any](items []T, query string, labelOf func(T) string) []T {
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = labelOf(item)
	}
	ranks := fuzzy.RankFindNormalizedFold(query, labels)
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].OriginalIndex < ranks[j].OriginalIndex
	})
	out := make([]T, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, items[r.OriginalIndex])
	}
	return out
}

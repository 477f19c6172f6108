package audit

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/wI2L/jsondiff"

	"loanadmin.org/internal/auth"
	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/repo"
	"loanadmin.org/internal/store"
)

// TrailKey is the storage key of the change trail.
const TrailKey = "auditTrail"

// DefaultLimit caps the trail and the activity lists.
const DefaultLimit = 500

// Mask replaces secret values that are kept in a diff.
const Mask = "********"

// redaction names a member by its path from the document root. Dropped members
// never reach a diff; masked ones show only that a value is set.
type redaction struct {
	path []string
	drop bool
}

var redacted = []redaction{
	{path: []string{"password_hash"}, drop: true},
	{path: []string{"api_token", "token"}},
}

// Entry is one recorded change. Diff is an RFC 6902 patch from the old record to the new one.
type Entry struct {
	repo.Meta
	Collection string          `json:"collection"`
	Action     repo.Action     `json:"action"`
	RecordID   string          `json:"record_id"`
	Actor      string          `json:"actor,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Diff       json.RawMessage `json:"diff"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Collection string
	RecordID   string
	Actor      string
	Limit      int
}

func (f Filter) match(e Entry) bool {
	return (f.Collection == "" || e.Collection == f.Collection) &&
		(f.RecordID == "" || e.RecordID == f.RecordID) &&
		(f.Actor == "" || e.Actor == f.Actor)
}

// Trail persists repository changes, newest first, keeping at most limit entries.
type Trail struct {
	entries *repo.Collection[Entry, *Entry]
	limit   int
}

func NewTrail(kv store.KV, limit int) *Trail {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Trail{entries: repo.NewCollection[Entry](kv, TrailKey), limit: limit}
}

// Hook returns a repo.Hook that records every change. Failures are logged, not returned.
func (t *Trail) Hook() repo.Hook {
	return func(ctx context.Context, c repo.Change) {
		if err := t.Record(ctx, c); err != nil {
			obs.Logger().WithError(err).
				WithField("collection", c.Collection).
				WithField("record_id", c.ID).
				Error("audit trail write failed")
		}
	}
}

// Record stores c. Updates that change nothing visible are skipped.
func (t *Trail) Record(ctx context.Context, c repo.Change) error {
	patch, err := jsondiff.CompareJSON(redact(c.Before), redact(c.After))
	if err != nil {
		return err
	}
	if c.Action == repo.ActionUpdate && len(patch) == 0 {
		return nil
	}
	diff, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	entry := Entry{
		Collection: c.Collection,
		Action:     c.Action,
		RecordID:   c.ID,
		RequestID:  RequestIDFromContext(ctx),
		Diff:       diff,
	}
	if uid, ok := auth.UserIDFromContext(ctx); ok {
		entry.Actor = uid
	}
	_, err = t.entries.Mutate(ctx, func(items []Entry) ([]Entry, error) {
		return prepend(items, entry, t.limit), nil
	})
	return err
}

// List returns matching entries, newest first.
func (t *Trail) List(ctx context.Context, f Filter) ([]Entry, error) {
	items, err := t.entries.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []Entry{}
	for _, e := range items {
		if !f.match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// redact drops or masks the members listed in redacted. Absent documents diff as {}.
func redact(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return raw
	}
	changed := false
	for _, r := range redacted {
		if r.apply(doc) {
			changed = true
		}
	}
	if !changed {
		return raw
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return []byte("{}")
	}
	return out
}

func (r redaction) apply(doc map[string]any) bool {
	parent := doc
	for _, k := range r.path[:len(r.path)-1] {
		next, ok := parent[k].(map[string]any)
		if !ok {
			return false
		}
		parent = next
	}
	last := r.path[len(r.path)-1]
	v, ok := parent[last]
	if !ok {
		return false
	}
	if r.drop {
		delete(parent, last)
		return true
	}
	if s, isStr := v.(string); isStr && s == "" {
		return false
	}
	parent[last] = Mask
	return true
}

func prepend[T any](items []T, v T, limit int) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, v)
	out = append(out, items...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}


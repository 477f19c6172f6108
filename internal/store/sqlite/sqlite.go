// Package sqlite implements store.KV on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/store"
)

// Store keeps every key as one row of kv_entries. SQLite allows a single
// writer, so writes are serialised in-process as well.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ store.KV = (*Store)(nil)

// Open opens (or creates) the database at path. Use ":memory:" for a throwaway database.
// The schema is expected to be migrated by the caller.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite store: path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Get(ctx context.Context, key string) (_ []byte, err error) {
	defer obs.ObserveStore("sqlite", "get", time.Now(), &err)
	var value []byte
	err = s.db.QueryRowContext(ctx, `select value from kv_entries where key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) (err error) {
	defer obs.ObserveStore("sqlite", "put", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, upsertSQL, key, nonNil(value))
	return err
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer obs.ObserveStore("sqlite", "delete", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `delete from kv_entries where key = ?`, key)
	return err
}

func (s *Store) Keys(ctx context.Context) (_ []string, err error) {
	defer obs.ObserveStore("sqlite", "keys", time.Now(), &err)
	rows, err := s.db.QueryContext(ctx, `select key from kv_entries order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFunc) (err error) {
	defer obs.ObserveStore("sqlite", "update", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		cur []byte
		ok  = true
	)
	err = tx.QueryRowContext(ctx, `select value from kv_entries where key = ?`, key).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		ok, err = false, nil
	}
	if err != nil {
		return err
	}
	next, err := fn(cur, ok)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertSQL, key, nonNil(next)); err != nil {
		return err
	}
	return tx.Commit()
}

const upsertSQL = `
	insert into kv_entries (key, value, updated_at)
	values (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	on conflict (key) do update
	set value = excluded.value, updated_at = excluded.updated_at
`

// value is declared not null; an empty document is stored as a zero-length blob
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

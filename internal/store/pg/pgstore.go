// Package pg implements store.KV on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/store"
)

const (
	pgErrUniqueViolation = "23505"
	pgErrSerialization   = "40001"
)

// Store keeps every key as one row of kv_entries.
type Store struct {
	db *sql.DB
}

var _ store.KV = (*Store)(nil)

// Open connects using the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle; the caller keeps ownership of db.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Get(ctx context.Context, key string) (_ []byte, err error) {
	defer obs.ObserveStore("postgres", "get", time.Now(), &err)
	var value []byte
	err = s.db.QueryRowContext(ctx, `select value from kv_entries where key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) (err error) {
	defer obs.ObserveStore("postgres", "put", time.Now(), &err)
	_, err = s.db.ExecContext(ctx, `
		insert into kv_entries (key, value, updated_at)
		values ($1, $2, now())
		on conflict (key) do update
		set value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer obs.ObserveStore("postgres", "delete", time.Now(), &err)
	_, err = s.db.ExecContext(ctx, `delete from kv_entries where key = $1`, key)
	return err
}

func (s *Store) Keys(ctx context.Context) (_ []string, err error) {
	defer obs.ObserveStore("postgres", "keys", time.Now(), &err)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Update locks the row for the duration of fn. A first write racing another
// first write for the same key surfaces as store.ErrConflict.
func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFunc) (err error) {
	defer obs.ObserveStore("postgres", "update", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		cur []byte
		ok  = true
	)
	err = tx.QueryRowContext(ctx, `select value from kv_entries where key = $1 for update`, key).Scan(&cur)
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

	if ok {
		_, err = tx.ExecContext(ctx, `update kv_entries set value = $2, updated_at = now() where key = $1`, key, next)
	} else {
		_, err = tx.ExecContext(ctx, `insert into kv_entries (key, value, updated_at) values ($1, $2, now())`, key, next)
	}
	if err != nil {
		return mapPgError(err)
	}
	return mapPgError(tx.Commit())
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation, pgErrSerialization:
			return store.ErrConflict
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

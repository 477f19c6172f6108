// Package redis implements store.KV on Redis using optimistic WATCH/MULTI transactions.
package redis

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/store"
)

const maxRetries = 16

// Store namespaces every key under prefix.
type Store struct {
	client *goredis.Client
	prefix string
}

var _ store.KV = (*Store)(nil)

// Open connects to addr. An empty prefix defaults to "loanadmin".
func Open(addr, prefix string) (*Store, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis store: address is required")
	}
	return New(goredis.NewClient(&goredis.Options{Addr: addr}), prefix), nil
}

// New wraps an existing client.
func New(client *goredis.Client, prefix string) *Store {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "loanadmin"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) key(k string) string { return s.prefix + ":kv:" + k }

func (s *Store) Get(ctx context.Context, key string) (_ []byte, err error) {
	defer obs.ObserveStore("redis", "get", time.Now(), &err)
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	return v, err
}

func (s *Store) Put(ctx context.Context, key string, value []byte) (err error) {
	defer obs.ObserveStore("redis", "put", time.Now(), &err)
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer obs.ObserveStore("redis", "delete", time.Now(), &err)
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *Store) Keys(ctx context.Context) (_ []string, err error) {
	defer obs.ObserveStore("redis", "keys", time.Now(), &err)
	prefix := s.key("")
	keys := []string{}
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Update retries when another client modifies the key between WATCH and EXEC.
func (s *Store) Update(ctx context.Context, key string, fn store.UpdateFunc) (err error) {
	defer obs.ObserveStore("redis", "update", time.Now(), &err)
	k := s.key(key)
	txf := func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		ok := true
		if errors.Is(err, goredis.Nil) {
			cur, ok, err = nil, false, nil
		}
		if err != nil {
			return err
		}
		next, err := fn(cur, ok)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}
	for i := 0; i < maxRetries; i++ {
		err = s.client.Watch(ctx, txf, k)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return store.ErrConflict
}

// Package storetest holds the behaviour every store.KV backend must satisfy.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"loanadmin.org/internal/store"
)

// Run exercises kv against the shared KV contract. newKV must return an empty store.
func Run(t *testing.T, newKV func(t *testing.T) store.KV) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		kv := newKV(t)
		_, err := kv.Get(context.Background(), "organizations")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		value := []byte(`[{"id":"a","name":"Acme Finance"}]`)
		require.NoError(t, kv.Put(ctx, "organizations", value))
		got, err := kv.Get(ctx, "organizations")
		require.NoError(t, err)
		require.Equal(t, value, got)

		require.NoError(t, kv.Put(ctx, "organizations", []byte(`[]`)))
		got, err = kv.Get(ctx, "organizations")
		require.NoError(t, err)
		require.Equal(t, []byte(`[]`), got)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		require.NoError(t, kv.Put(ctx, "roles", []byte(`[]`)))
		require.NoError(t, kv.Delete(ctx, "roles"))
		require.NoError(t, kv.Delete(ctx, "roles"))
		_, err := kv.Get(ctx, "roles")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("KeysSorted", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		for _, k := range []string{"users", "branches", "roles"} {
			require.NoError(t, kv.Put(ctx, k, []byte(`[]`)))
		}
		keys, err := kv.Keys(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"branches", "roles", "users"}, keys)
	})

	t.Run("UpdateCreatesAndModifies", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		err := kv.Update(ctx, "counter", func(cur []byte, ok bool) ([]byte, error) {
			require.False(t, ok)
			return []byte("1"), nil
		})
		require.NoError(t, err)
		err = kv.Update(ctx, "counter", func(cur []byte, ok bool) ([]byte, error) {
			require.True(t, ok)
			require.Equal(t, []byte("1"), cur)
			return []byte("2"), nil
		})
		require.NoError(t, err)
		got, err := kv.Get(ctx, "counter")
		require.NoError(t, err)
		require.Equal(t, []byte("2"), got)
	})

	t.Run("UpdateErrorWritesNothing", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		require.NoError(t, kv.Put(ctx, "users", []byte(`["keep"]`)))
		boom := errors.New("boom")
		err := kv.Update(ctx, "users", func(cur []byte, ok bool) ([]byte, error) {
			return []byte(`["lost"]`), boom
		})
		require.ErrorIs(t, err, boom)
		got, err := kv.Get(ctx, "users")
		require.NoError(t, err)
		require.Equal(t, []byte(`["keep"]`), got)
	})

	t.Run("ConcurrentUpdatesDoNotLoseWrites", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- kv.Update(ctx, "n", func(cur []byte, ok bool) ([]byte, error) {
					n := 0
					if ok {
						if _, err := fmt.Sscanf(string(cur), "%d", &n); err != nil {
							return nil, err
						}
					}
					return []byte(fmt.Sprintf("%d", n+1)), nil
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		got, err := kv.Get(ctx, "n")
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("%d", writers), string(got))
	})
}

package redis

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"loanadmin.org/internal/ids"
	"loanadmin.org/internal/store"
	"loanadmin.org/internal/store/storetest"
)

func TestKeyNamespacing(t *testing.T) {
	s := New(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"}), " tenant-a: ")
	if got := s.key("users"); got != "tenant-a:kv:users" {
		t.Fatalf("key = %q", got)
	}
	s = New(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"}), "")
	if got := s.key("roles"); got != "loanadmin:kv:roles" {
		t.Fatalf("default prefix key = %q", got)
	}
}

func TestOpenRequiresAddress(t *testing.T) {
	if _, err := Open(" ", "x"); err == nil {
		t.Fatal("expected error")
	}
}

// Runs against a live server when LOANADMIN_TEST_REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("LOANADMIN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LOANADMIN_TEST_REDIS_ADDR not set")
	}
	storetest.Run(t, func(t *testing.T) store.KV {
		s, err := Open(addr, "loanadmin-test-"+ids.New())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := s.Ping(context.Background()); err != nil {
			t.Skipf("redis unavailable: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

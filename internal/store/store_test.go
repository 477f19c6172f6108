package store_test

import (
	"context"
	"testing"

	"loanadmin.org/internal/store"
	"loanadmin.org/internal/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.KV { return store.NewMemory() })
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	value := []byte(`[1]`)
	if err := m.Put(ctx, "k", value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[1] = '9'
	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `[1]` {
		t.Fatalf("stored value aliased caller buffer: %s", got)
	}
	got[1] = '7'
	again, _ := m.Get(ctx, "k")
	if string(again) != `[1]` {
		t.Fatalf("returned value aliased stored buffer: %s", again)
	}
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.NewMemory().Put(ctx, "k", []byte("v")); err == nil {
		t.Fatal("expected context error")
	}
}

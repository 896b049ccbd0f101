package storage

import (
	"context"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

func newTestKVStore(t *testing.T) *KVStore {
	t.Helper()
	return NewKVStore(dbm.NewMemDB())
}

func TestKVStore_PutGet(t *testing.T) {
	s := newTestKVStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "orders:1", []byte("payload"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "orders:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("got %q, want payload", got)
	}
}

func TestKVStore_GetMissingKey(t *testing.T) {
	s := newTestKVStore(t)
	if _, err := s.Get(context.Background(), "orders:missing"); err != types.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestKVStore_Delete(t *testing.T) {
	s := newTestKVStore(t)
	ctx := context.Background()
	_ = s.Put(ctx, "orders:1", []byte("x"), 0)

	if err := s.Delete(ctx, "orders:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "orders:1"); err != types.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound after delete", err)
	}
}

func TestKVStore_Exists(t *testing.T) {
	s := newTestKVStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "orders:1")
	if err != nil || ok {
		t.Fatalf("expected false, nil before put; got %v, %v", ok, err)
	}

	_ = s.Put(ctx, "orders:1", []byte("x"), 0)
	ok, err = s.Exists(ctx, "orders:1")
	if err != nil || !ok {
		t.Fatalf("expected true, nil after put; got %v, %v", ok, err)
	}
}

func TestKVStore_TTLExpiry(t *testing.T) {
	s := newTestKVStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "quotes:1", []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := s.Get(ctx, "quotes:1"); err != types.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound once TTL elapses", err)
	}
}

func TestKVStore_CleanupExpired(t *testing.T) {
	s := newTestKVStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "quotes:1", []byte("x"), time.Millisecond)
	_ = s.Put(ctx, "quotes:2", []byte("y"), 0)
	time.Sleep(5 * time.Millisecond)

	n, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d removed, want 1", n)
	}
	if ok, _ := s.Exists(ctx, "quotes:2"); !ok {
		t.Error("expected quotes:2 to survive cleanup")
	}
}

func TestKVStore_Iterate(t *testing.T) {
	s := newTestKVStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, Key(types.StorageKeyOrders, "a"), []byte("A"), 0)
	_ = s.Put(ctx, Key(types.StorageKeyOrders, "b"), []byte("B"), 0)
	_ = s.Put(ctx, Key(types.StorageKeyIntents, "c"), []byte("C"), 0)

	seen := map[string]string{}
	err := s.Iterate(ctx, types.StorageKeyOrders, func(id string, value []byte) error {
		seen[id] = string(value)
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 2 || seen["a"] != "A" || seen["b"] != "B" {
		t.Errorf("got %v, want {a:A b:B}", seen)
	}
}

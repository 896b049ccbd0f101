package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// envelope wraps every stored value with its expiry so CleanupExpired can
// reap entries without the caller tracking TTLs separately.
type envelope struct {
	Value   []byte `json:"value"`
	Expires int64  `json:"expires,omitempty"` // unix nanos; 0 means no TTL
}

// KVStore is a Store backed by a cometbft-db dbm.DB (goleveldb in
// production, memdb in tests). It is the default backend.
type KVStore struct {
	mu sync.Mutex
	db dbm.DB
}

// NewKVStore wraps an already-opened dbm.DB. Callers are expected to open
// it via dbm.NewDB("solver", dbm.GoLevelDBBackend, dataDir) or
// dbm.NewMemDB() for tests.
func NewKVStore(db dbm.DB) *KVStore {
	return &KVStore{db: db}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("kvstore get %s: %w", key, err)
	}
	if raw == nil {
		return nil, types.ErrNotFound
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("kvstore decode envelope %s: %w", key, err)
	}
	if env.Expires != 0 && time.Now().UnixNano() > env.Expires {
		return nil, types.ErrNotFound
	}
	return env.Value, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	env := envelope{Value: value}
	if ttl > 0 {
		env.Expires = time.Now().Add(ttl).UnixNano()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kvstore encode envelope %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.SetSync([]byte(key), raw); err != nil {
		return fmt.Errorf("kvstore put %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteSync([]byte(key)); err != nil {
		return fmt.Errorf("kvstore delete %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == types.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CleanupExpired scans the whole keyspace. This is acceptable at the
// solver's expected order volume; a higher-throughput deployment would
// want a secondary expiry index instead of a full scan.
func (s *KVStore) CleanupExpired(ctx context.Context) (int, error) {
	iter, err := s.db.Iterator(nil, nil)
	if err != nil {
		return 0, fmt.Errorf("kvstore cleanup iterator: %w", err)
	}
	defer iter.Close()

	var expiredKeys [][]byte
	now := time.Now().UnixNano()
	for ; iter.Valid(); iter.Next() {
		var env envelope
		if err := json.Unmarshal(iter.Value(), &env); err != nil {
			continue // not every stored key need be an envelope written by this type; skip silently
		}
		if env.Expires != 0 && now > env.Expires {
			key := append([]byte(nil), iter.Key()...)
			expiredKeys = append(expiredKeys, key)
		}
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("kvstore cleanup scan: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range expiredKeys {
		if err := s.db.Delete(key); err != nil {
			return 0, fmt.Errorf("kvstore cleanup delete %s: %w", key, err)
		}
	}
	return len(expiredKeys), nil
}

func (s *KVStore) Iterate(ctx context.Context, namespace types.StorageKey, fn func(id string, value []byte) error) error {
	prefix := string(namespace) + ":"
	iter, err := s.db.Iterator([]byte(prefix), nil)
	if err != nil {
		return fmt.Errorf("kvstore iterate %s: %w", namespace, err)
	}
	defer iter.Close()

	now := time.Now().UnixNano()
	for ; iter.Valid(); iter.Next() {
		key := string(iter.Key())
		if !strings.HasPrefix(key, prefix) {
			break // lexicographic ordering means we've left the namespace
		}
		var env envelope
		if err := json.Unmarshal(iter.Value(), &env); err != nil {
			return fmt.Errorf("kvstore decode envelope %s: %w", key, err)
		}
		if env.Expires != 0 && now > env.Expires {
			continue
		}
		id := strings.TrimPrefix(key, prefix)
		if err := fn(id, env.Value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// encodeUint64 is a fixed big-endian encoding for composite keys built on
// top of Store. Nothing in this module calls it.
func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

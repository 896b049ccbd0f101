// Package storage defines the Store collaborator contract and the
// key/value backends that implement it.
package storage

import (
	"context"
	"time"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// Store is a namespaced blob key/value contract with optional TTL. Keys
// passed to Get/Put/Delete/Exists are already namespace-qualified strings
// of the form "{namespace}:{id}"; the Store itself is oblivious to the
// StorageKey taxonomy beyond treating the whole string as an opaque key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// CleanupExpired removes entries whose TTL has elapsed and reports how
	// many were removed. Backends with native TTL support (e.g. an external
	// TTL-aware cache) may make this a no-op.
	CleanupExpired(ctx context.Context) (int, error)
	// Iterate walks every key under the given namespace prefix, calling fn
	// with the unqualified id and raw value. Used by the StateMachine to
	// support Recovery's full-order scan and by Store implementations that
	// need to enumerate a namespace (e.g. a prefix-scan LevelDB backend).
	Iterate(ctx context.Context, namespace types.StorageKey, fn func(id string, value []byte) error) error
}

// Key builds the "{namespace}:{id}" form every Store implementation
// expects.
func Key(namespace types.StorageKey, id string) string {
	return string(namespace) + ":" + id
}

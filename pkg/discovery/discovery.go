// Package discovery defines the Discovery collaborator contract and the
// implementations that watch for new intents, on-chain or off-chain.
package discovery

import (
	"context"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// Discovery begins emitting discovered intents into sink when StartAll is
// called, and must stop cleanly when StopAll is called (engine shutdown
// path). The engine hands the intent queue's producer end to StartAll and
// never reads it back out; Discovery owns the producer lifetime.
type Discovery interface {
	StartAll(ctx context.Context, sink chan<- types.Intent) error
	StopAll(ctx context.Context) error
}

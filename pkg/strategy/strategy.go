// Package strategy defines the ExecutionStrategy collaborator contract:
// the policy that decides whether, and with what gas parameters, the
// solver acts on a validated order.
package strategy

import (
	"context"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// Strategy decides what to do with an ExecutionContext. Implementations
// are expected to be synchronous or trivially awaitable; none of the
// engine's concurrency gating applies to the decision call itself.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, execCtx types.ExecutionContext) (types.ExecutionDecision, error)
}

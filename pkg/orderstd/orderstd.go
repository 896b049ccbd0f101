// Package orderstd defines the Order-Standard collaborator contract: the
// pluggable parser/transaction-builder for one cross-chain order format
// (e.g. EIP-7683), keyed by the Order.Standard tag.
package orderstd

import (
	"context"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// Standard validates a discovered intent into an order and builds the
// prepare/fill/claim transactions for it. The core never inspects
// Order.StandardPayload itself; only the Standard named by Order.Standard
// understands its contents.
type Standard interface {
	Name() string
	ValidateIntent(ctx context.Context, intent types.Intent, solverAddress string) (types.Order, error)
	// GeneratePrepareTransaction returns nil, nil when the standard needs
	// no on-chain open step for this order (the OrderHandler's
	// no-prepare-needed branch).
	GeneratePrepareTransaction(ctx context.Context, intent types.Intent, order types.Order, params types.ExecutionParams) (*types.Transaction, error)
	GenerateFillTransaction(ctx context.Context, order types.Order, params types.ExecutionParams) (types.Transaction, error)
	GenerateClaimTransaction(ctx context.Context, order types.Order, proof types.FillProof) (types.Transaction, error)
}

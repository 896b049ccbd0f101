// Package delivery defines the Delivery collaborator contract: signing and
// broadcasting transactions, and reading back their on-chain status.
package delivery

import (
	"context"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// Delivery is multiplexed across every chain id the solver operates on; a
// single Delivery value is shared by the whole engine and routes by the
// chain_id argument on each call.
type Delivery interface {
	Submit(ctx context.Context, tx types.Transaction) (types.TransactionHash, error)
	WaitForConfirmation(ctx context.Context, hash types.TransactionHash, confirmations uint64) (types.Receipt, error)
	GetReceipt(ctx context.Context, hash types.TransactionHash) (types.Receipt, error)
	// GetStatus reports true iff mined and successful, false iff mined and
	// reverted. Any other outcome (not yet mined, RPC error) is an error.
	GetStatus(ctx context.Context, hash types.TransactionHash) (bool, error)
	GetBalance(ctx context.Context, chainID uint64, address string, token string) (string, error)
	GetGasPrice(ctx context.Context, chainID uint64) (string, error)
	GetBlockNumber(ctx context.Context, chainID uint64) (uint64, error)
	GetAllowance(ctx context.Context, chainID uint64, owner, spender, token string) (string, error)
	GetNonce(ctx context.Context, chainID uint64, address string) (uint64, error)
	EstimateGas(ctx context.Context, tx types.Transaction) (uint64, error)
}

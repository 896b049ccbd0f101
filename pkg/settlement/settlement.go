// Package settlement defines the Settlement collaborator contract: the
// attestation source that proves a fill happened, and the authority that
// decides when a proof is claimable.
package settlement

import (
	"context"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

type Settlement interface {
	GetAttestation(ctx context.Context, order types.Order, fillTxHash types.TransactionHash) (types.FillProof, error)
	CanClaim(ctx context.Context, order types.Order, proof types.FillProof) bool
}

package engine

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/oif-solver/solver-core/pkg/delivery"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// maxUint256 is the value TokenApprovals treats as "already fully
// approved" — a one-shot, infinite allowance, matching the reference
// token manager's ensure_approvals behavior.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ApprovalTarget is one (chain, token, spender) triple TokenApprovals
// ensures has a maximal allowance before the engine starts processing
// orders. Spender is typically the input or output settler contract for
// that chain.
type ApprovalTarget struct {
	ChainID uint64
	Token   string
	Spender string
}

// TokenApprovals is a one-shot startup component: for every configured
// approval target, it checks the current allowance and submits an
// approve() transaction if it is not already at the maximum
// representable value, waiting for confirmation before moving to the
// next target. Any failure aborts startup; this runs before recovery
// and before any order is processed.
type TokenApprovals struct {
	delivery      delivery.Delivery
	solverAddress string
	targets       []ApprovalTarget
	confirmations uint64
	logger        *log.Logger
}

func NewTokenApprovals(d delivery.Delivery, solverAddress string, targets []ApprovalTarget, confirmations uint64, logger *log.Logger) *TokenApprovals {
	if logger == nil {
		logger = log.New(log.Writer(), "[TokenApprovals] ", log.LstdFlags)
	}
	return &TokenApprovals{
		delivery:      d,
		solverAddress: solverAddress,
		targets:       targets,
		confirmations: confirmations,
		logger:        logger,
	}
}

// Run ensures every configured target is approved, submitting and
// confirming an approval transaction for any that is not.
func (a *TokenApprovals) Run(ctx context.Context) error {
	for _, target := range a.targets {
		if err := a.ensure(ctx, target); err != nil {
			return fmt.Errorf("token approvals: chain %d token %s spender %s: %w",
				target.ChainID, target.Token, target.Spender, err)
		}
	}
	a.logger.Printf("all %d approval target(s) confirmed", len(a.targets))
	return nil
}

func (a *TokenApprovals) ensure(ctx context.Context, target ApprovalTarget) error {
	current, err := a.delivery.GetAllowance(ctx, target.ChainID, a.solverAddress, target.Spender, target.Token)
	if err != nil {
		return fmt.Errorf("get allowance: %w", err)
	}

	currentAmount, ok := new(big.Int).SetString(current, 10)
	if ok && currentAmount.Cmp(maxUint256) >= 0 {
		a.logger.Printf("chain %d token %s: already approved for spender %s", target.ChainID, target.Token, target.Spender)
		return nil
	}

	return a.submitApproval(ctx, target)
}

func (a *TokenApprovals) submitApproval(ctx context.Context, target ApprovalTarget) error {
	data, err := delivery.BuildApproveCalldata(target.Spender, maxUint256)
	if err != nil {
		return fmt.Errorf("build approve calldata: %w", err)
	}

	hash, err := a.delivery.Submit(ctx, types.Transaction{
		ChainID: target.ChainID,
		To:      target.Token,
		Data:    data,
	})
	if err != nil {
		return fmt.Errorf("submit approval: %w", err)
	}

	a.logger.Printf("chain %d token %s: approval tx %s submitted, awaiting confirmation", target.ChainID, target.Token, hash.Hash)

	receipt, err := a.delivery.WaitForConfirmation(ctx, hash, a.confirmations)
	if err != nil {
		return fmt.Errorf("await approval confirmation: %w", err)
	}
	if receipt.Status != types.TxStatusConfirmed {
		return fmt.Errorf("approval tx %s reverted", hash.Hash)
	}

	a.logger.Printf("chain %d token %s: approval confirmed", target.ChainID, target.Token)
	return nil
}

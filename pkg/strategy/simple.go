package strategy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/oif-solver/solver-core/pkg/orderstd"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// Simple defers execution when any chain in context is quoting gas above
// a configured ceiling, and skips orders the solver cannot afford to fill
// given its currently known balances.
type Simple struct {
	maxGasPriceWei *big.Int
	defaultGas     types.ExecutionParams
}

// NewSimple builds a Simple strategy with a gas ceiling expressed in gwei.
func NewSimple(maxGasPriceGwei uint64) *Simple {
	wei := new(big.Int).Mul(new(big.Int).SetUint64(maxGasPriceGwei), big.NewInt(1_000_000_000))
	return &Simple{
		maxGasPriceWei: wei,
		defaultGas:     types.ExecutionParams{GasPrice: wei.String()},
	}
}

func (s *Simple) Name() string { return "simple" }

func (s *Simple) Decide(ctx context.Context, execCtx types.ExecutionContext) (types.ExecutionDecision, error) {
	var maxObservedGasPrice big.Int
	for chainID, data := range execCtx.ChainData {
		price, ok := new(big.Int).SetString(data.GasPrice, 10)
		if !ok {
			continue // unparseable gas price for this chain is treated as zero, not an error
		}
		if price.Cmp(&maxObservedGasPrice) > 0 {
			maxObservedGasPrice = *price
		}
		_ = chainID
	}

	if maxObservedGasPrice.Cmp(s.maxGasPriceWei) > 0 {
		return types.ExecutionDecision{Kind: types.DecisionDefer, Defer: "60s"}, nil
	}

	if execCtx.Order.Standard == "eip7683" {
		if reason, insufficient := s.checkEip7683Balances(execCtx); insufficient {
			return types.ExecutionDecision{Kind: types.DecisionSkip, Reason: reason}, nil
		}
	}

	return types.ExecutionDecision{Kind: types.DecisionExecute, Params: &s.defaultGas}, nil
}

func (s *Simple) checkEip7683Balances(execCtx types.ExecutionContext) (string, bool) {
	var payload orderstd.Eip7683Payload
	if err := decodePayload(execCtx.Order.StandardPayload, &payload); err != nil {
		return "", false // can't decode, let the order-standard's own validation have caught this
	}

	for _, fi := range payload.FillInstructions {
		balances, ok := execCtx.SolverBalances[fi.DestinationChainID]
		if !ok {
			return fmt.Sprintf("no balance data for chain %d", fi.DestinationChainID), true
		}

		balanceStr, ok := balances[payload.MaxSpentToken]
		if !ok {
			return fmt.Sprintf("no balance for token %q on chain %d", payload.MaxSpentToken, fi.DestinationChainID), true
		}

		balance, ok := new(big.Int).SetString(balanceStr, 10)
		if !ok {
			return fmt.Sprintf("unparseable balance for token %q on chain %d", payload.MaxSpentToken, fi.DestinationChainID), true
		}
		required, ok := new(big.Int).SetString(payload.MaxSpentAmount, 10)
		if !ok {
			return "", false
		}
		if balance.Cmp(required) < 0 {
			return fmt.Sprintf("insufficient balance on chain %d: have %s need %s of token %q",
				fi.DestinationChainID, balance.String(), required.String(), payload.MaxSpentToken), true
		}
	}
	return "", false
}

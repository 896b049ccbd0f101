package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oif-solver/solver-core/pkg/delivery"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// TokenSet names the per-chain tokens ContextBuilder should fetch solver
// balances for, keyed by chain id. An empty-string token means native.
type TokenSet map[uint64][]string

// ContextBuilder assembles the per-intent ExecutionContext an
// ExecutionStrategy decides against.
type ContextBuilder struct {
	delivery delivery.Delivery
	tokens   TokenSet
	logger   *log.Logger
}

func NewContextBuilder(d delivery.Delivery, tokens TokenSet, logger *log.Logger) *ContextBuilder {
	if logger == nil {
		logger = log.New(log.Writer(), "[ContextBuilder] ", log.LstdFlags)
	}
	return &ContextBuilder{delivery: d, tokens: tokens, logger: logger}
}

// Build resolves chain data and solver balances for every chain id
// referenced by order.InputChainIDs/OutputChainIDs. Chain-data or
// balance-fetch failures are logged as warnings and the corresponding
// entry is simply omitted; the strategy proceeds with partial context.
func (b *ContextBuilder) Build(ctx context.Context, order *types.Order, solverAddress string) types.ExecutionContext {
	chainIDs := uniqueChainIDs(order)
	now := uint64(time.Now().Unix())

	execCtx := types.ExecutionContext{
		Order:          order,
		ChainData:      make(map[uint64]types.ChainData, len(chainIDs)),
		SolverBalances: make(map[uint64]map[string]string, len(chainIDs)),
		Timestamp:      now,
	}

	for _, chainID := range chainIDs {
		data, err := b.fetchChainData(ctx, chainID)
		if err != nil {
			b.logger.Printf("order %s: chain %d data unavailable: %v", types.TruncateID(order.ID), chainID, err)
			continue
		}
		execCtx.ChainData[chainID] = data

		balances, err := b.fetchBalances(ctx, chainID, solverAddress)
		if err != nil {
			b.logger.Printf("order %s: chain %d balances unavailable: %v", types.TruncateID(order.ID), chainID, err)
			continue
		}
		execCtx.SolverBalances[chainID] = balances
	}

	return execCtx
}

func (b *ContextBuilder) fetchChainData(ctx context.Context, chainID uint64) (types.ChainData, error) {
	gasPrice, err := b.delivery.GetGasPrice(ctx, chainID)
	if err != nil {
		return types.ChainData{}, fmt.Errorf("gas price: %w", err)
	}
	blockNumber, err := b.delivery.GetBlockNumber(ctx, chainID)
	if err != nil {
		return types.ChainData{}, fmt.Errorf("block number: %w", err)
	}
	return types.ChainData{
		ChainID:     chainID,
		GasPrice:    gasPrice,
		BlockNumber: blockNumber,
		Timestamp:   uint64(time.Now().Unix()),
	}, nil
}

func (b *ContextBuilder) fetchBalances(ctx context.Context, chainID uint64, solverAddress string) (map[string]string, error) {
	tokens := append([]string{""}, b.tokens[chainID]...) // "" = native, always checked
	balances := make(map[string]string, len(tokens))

	for _, token := range tokens {
		balance, err := b.delivery.GetBalance(ctx, chainID, solverAddress, token)
		if err != nil {
			return nil, fmt.Errorf("balance for token %q: %w", token, err)
		}
		balances[token] = balance
	}
	return balances, nil
}

func uniqueChainIDs(order *types.Order) []uint64 {
	seen := make(map[uint64]bool)
	var ids []uint64
	for _, id := range append(append([]uint64{}, order.InputChainIDs...), order.OutputChainIDs...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

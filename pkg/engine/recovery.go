package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/oif-solver/solver-core/pkg/delivery"
	"github.com/oif-solver/solver-core/pkg/eventbus"
	"github.com/oif-solver/solver-core/pkg/settlement"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
	"github.com/oif-solver/solver-core/pkg/state"
	"github.com/oif-solver/solver-core/pkg/storage"
)

// reconciledOutcome is the classification Recovery assigns to one
// non-terminal order after checking its on-chain tx history.
type reconciledOutcome int

const (
	outcomeNeedsExecution reconciledOutcome = iota
	outcomeNeedsFill
	outcomeNeedsClaim
	outcomeFinalized
	outcomeFailed
)

// Recovery reconciles persisted order state against on-chain reality on
// startup, so a crash mid-flight never leaves an order silently stuck.
type Recovery struct {
	machine    *state.StateMachine
	store      storage.Store
	bus        *eventbus.EventBus
	delivery   delivery.Delivery
	settlement settlement.Settlement
	settlementSpawner SettlementSpawnerFunc
	logger     *log.Logger
}

// SettlementSpawnerFunc spawns a SettlementMonitor for an order whose
// fill has confirmed but whose claim-readiness is still unknown.
type SettlementSpawnerFunc func(ctx context.Context, order types.Order, fillTxHash types.TransactionHash)

func NewRecovery(
	machine *state.StateMachine,
	store storage.Store,
	bus *eventbus.EventBus,
	d delivery.Delivery,
	s settlement.Settlement,
	settlementSpawner SettlementSpawnerFunc,
	logger *log.Logger,
) *Recovery {
	if logger == nil {
		logger = log.New(log.Writer(), "[Recovery] ", log.LstdFlags)
	}
	return &Recovery{machine: machine, store: store, bus: bus, delivery: d, settlement: s, settlementSpawner: settlementSpawner, logger: logger}
}

// Run loads every non-terminal order, reconciles orphaned intents, and
// per-order reconciles the last chain-visible step. It returns the
// intents that have no corresponding order, for the engine to re-queue;
// the intent record of an order that exists is deleted.
func (r *Recovery) Run(ctx context.Context) ([]types.Intent, error) {
	orders, err := r.machine.ListNonTerminal(ctx)
	if err != nil {
		return nil, fmt.Errorf("recovery: list non-terminal orders: %w", err)
	}

	orphaned, err := r.reconcileOrphanedIntents(ctx)
	if err != nil {
		r.logger.Printf("reconcile orphaned intents: %v", err)
	}

	for _, order := range orders {
		r.reconcileOrder(ctx, order)
	}

	r.logger.Printf("recovery complete: %d non-terminal order(s) reconciled, %d orphaned intent(s)", len(orders), len(orphaned))
	return orphaned, nil
}

func (r *Recovery) reconcileOrphanedIntents(ctx context.Context) ([]types.Intent, error) {
	var ids []string
	var intents []types.Intent
	err := r.store.Iterate(ctx, types.StorageKeyIntents, func(id string, value []byte) error {
		var intent types.Intent
		if err := json.Unmarshal(value, &intent); err != nil {
			r.logger.Printf("orphaned intent %s: decode failed, dropping: %v", types.TruncateID(id), err)
			return nil
		}
		ids = append(ids, id)
		intents = append(intents, intent)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Order lookups run after Iterate returns and cover terminal orders too.
	var orphaned []types.Intent
	for i, id := range ids {
		exists, err := r.store.Exists(ctx, storage.Key(types.StorageKeyOrders, id))
		if err != nil {
			return nil, err
		}
		if !exists {
			orphaned = append(orphaned, intents[i])
		} else if err := r.store.Delete(ctx, storage.Key(types.StorageKeyIntents, id)); err != nil {
			r.logger.Printf("intent %s: delete failed: %v", types.TruncateID(id), err)
		}
	}
	return orphaned, nil
}

func (r *Recovery) reconcileOrder(ctx context.Context, order *types.Order) {
	outcome, kind := r.classify(ctx, order)

	switch outcome {
	case outcomeNeedsExecution, outcomeNeedsFill:
		if order.ExecutionParams == nil {
			r.logger.Printf("order %s: needs execution but execution_params missing, skipping", types.TruncateID(order.ID))
			return
		}
		r.bus.Publish(types.NewOrderEvent(types.OrderEvent{Kind: types.OrderEventExecuting, OrderID: order.ID, Params: order.ExecutionParams}))

	case outcomeNeedsClaim:
		if order.FillProof != nil {
			if r.settlement.CanClaim(ctx, *order, *order.FillProof) {
				r.bus.Publish(types.NewSettlementEvent(types.SettlementEvent{Kind: types.SettlementEventClaimReady, OrderID: order.ID}))
				return
			}
		}
		if order.FillTxHash != nil {
			r.settlementSpawner(ctx, *order, *order.FillTxHash)
		}

	case outcomeFailed:
		if _, err := r.machine.Transition(ctx, order.ID, types.Failed(kind)); err != nil {
			r.logger.Printf("order %s: reconcile to Failed(%s) failed: %v", types.TruncateID(order.ID), kind, err)
		}

	case outcomeFinalized:
		r.walkToFinalized(ctx, order)
	}
}

// classify inspects an order's tx hashes in reverse lifecycle order
// (claim, then fill, then prepare) and returns the most advanced outcome
// plus, for outcomeFailed, which stage failed.
func (r *Recovery) classify(ctx context.Context, order *types.Order) (reconciledOutcome, types.TransactionType) {
	if order.ClaimTxHash != nil {
		ok := r.checkStatus(ctx, *order.ClaimTxHash)
		if ok {
			return outcomeFinalized, types.TxClaim
		}
		return outcomeFailed, types.TxClaim
	}

	if order.FillTxHash != nil {
		ok := r.checkStatus(ctx, *order.FillTxHash)
		if ok {
			return outcomeNeedsClaim, types.TxFill
		}
		return outcomeFailed, types.TxFill
	}

	if order.PrepareTxHash != nil {
		ok := r.checkStatus(ctx, *order.PrepareTxHash)
		if ok {
			return outcomeNeedsFill, types.TxPrepare
		}
		return outcomeFailed, types.TxPrepare
	}

	return outcomeNeedsExecution, ""
}

// checkStatus asks Delivery for a transaction's on-chain status. An RPC
// error is treated the same as a known failure: the solver cannot safely
// resume work whose outcome it does not know.
func (r *Recovery) checkStatus(ctx context.Context, hash types.TransactionHash) bool {
	ok, err := r.delivery.GetStatus(ctx, hash)
	if err != nil {
		r.logger.Printf("tx %s: status check failed, classifying conservatively as failed: %v", hash.Hash, err)
		return false
	}
	return ok
}

// walkToFinalized advances a stored non-terminal status forward through
// the transition table to Finalized, preserving invariant 1 (status never
// regresses) when on-chain reality has already moved past what was
// persisted.
func (r *Recovery) walkToFinalized(ctx context.Context, order *types.Order) {
	path := []types.OrderStatus{types.Pending(), types.Executed(), types.Settled(), types.Finalized()}
	current := order.Status
	for _, next := range path {
		if !types.IsValidTransition(current, next) {
			continue
		}
		updated, err := r.machine.Transition(ctx, order.ID, next)
		if err != nil {
			r.logger.Printf("order %s: walk to Finalized stalled at %s: %v", types.TruncateID(order.ID), next, err)
			return
		}
		current = updated.Status
	}
}

// Package state implements the StateMachine: the sole writer of order
// records, and the only component that enforces the order lifecycle's
// transition table.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
	"github.com/oif-solver/solver-core/pkg/storage"
)

// StateMachine owns every Order read/write. It does not cache; every call
// round-trips through Store. Serialization format is this package's
// concern, not the Store's.
type StateMachine struct {
	store storage.Store
}

func New(store storage.Store) *StateMachine {
	return &StateMachine{store: store}
}

func (m *StateMachine) key(id string) string {
	return storage.Key(types.StorageKeyOrders, id)
}

// Store persists a new order. Treated as idempotent by callers: an
// existing order at the same id is overwritten.
func (m *StateMachine) Store(ctx context.Context, order *types.Order) error {
	order.UpdatedAt = uint64(time.Now().Unix())
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("state: marshal order %s: %w", types.TruncateID(order.ID), err)
	}
	if err := m.store.Put(ctx, m.key(order.ID), raw, 0); err != nil {
		return fmt.Errorf("state: store order %s: %w", types.TruncateID(order.ID), err)
	}
	return nil
}

// Get loads an order by id. Returns types.ErrNotFound if absent.
func (m *StateMachine) Get(ctx context.Context, id string) (*types.Order, error) {
	raw, err := m.store.Get(ctx, m.key(id))
	if err != nil {
		return nil, err
	}
	var order types.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("state: unmarshal order %s: %w", types.TruncateID(id), err)
	}
	return &order, nil
}

// UpdateWith reads the order, applies mutate, stamps updated_at, and
// writes back. mutate is never called on a missing order; the read error
// propagates unchanged. No transition check is performed — callers that
// need one should go through Transition instead.
func (m *StateMachine) UpdateWith(ctx context.Context, id string, mutate func(o *types.Order)) (*types.Order, error) {
	order, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	mutate(order)
	order.UpdatedAt = uint64(time.Now().Unix())

	raw, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("state: marshal order %s: %w", types.TruncateID(id), err)
	}
	if err := m.store.Put(ctx, m.key(id), raw, 0); err != nil {
		return nil, fmt.Errorf("state: update order %s: %w", types.TruncateID(id), err)
	}
	return order, nil
}

// Transition validates the move against the transition table before
// writing. Returns an *types.InvalidTransitionError (unwrap-able via
// errors.As) when the move is illegal.
func (m *StateMachine) Transition(ctx context.Context, id string, next types.OrderStatus) (*types.Order, error) {
	order, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !types.IsValidTransition(order.Status, next) {
		return nil, &types.InvalidTransitionError{OrderID: id, From: order.Status, To: next}
	}
	return m.UpdateWith(ctx, id, func(o *types.Order) {
		o.Status = next
	})
}

// SetTxHash records a transaction hash for the given kind and maintains
// the OrderByTxHash reverse index that OrderIDByTxHash resolves.
func (m *StateMachine) SetTxHash(ctx context.Context, id string, hash types.TransactionHash, kind types.TransactionType) (*types.Order, error) {
	order, err := m.UpdateWith(ctx, id, func(o *types.Order) {
		switch kind {
		case types.TxPrepare:
			o.PrepareTxHash = &hash
		case types.TxFill:
			o.FillTxHash = &hash
		case types.TxClaim:
			o.ClaimTxHash = &hash
		}
	})
	if err != nil {
		return nil, err
	}

	reverseKey := storage.Key(types.StorageKeyOrderByTxHash, hash.Hash)
	if err := m.store.Put(ctx, reverseKey, []byte(id), 0); err != nil {
		return nil, fmt.Errorf("state: index tx hash %s for order %s: %w", hash.Hash, types.TruncateID(id), err)
	}
	return order, nil
}

// SetExecutionParams records the gas params an ExecutionStrategy decided.
func (m *StateMachine) SetExecutionParams(ctx context.Context, id string, params *types.ExecutionParams) (*types.Order, error) {
	return m.UpdateWith(ctx, id, func(o *types.Order) {
		o.ExecutionParams = params
	})
}

// SetFillProof records the attestation a SettlementMonitor fetched.
func (m *StateMachine) SetFillProof(ctx context.Context, id string, proof *types.FillProof) (*types.Order, error) {
	return m.UpdateWith(ctx, id, func(o *types.Order) {
		o.FillProof = proof
	})
}

// OrderIDByTxHash resolves the OrderByTxHash reverse index.
func (m *StateMachine) OrderIDByTxHash(ctx context.Context, hash string) (string, error) {
	raw, err := m.store.Get(ctx, storage.Key(types.StorageKeyOrderByTxHash, hash))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ListNonTerminal returns every order whose status is not Finalized and
// not Failed, for Recovery's startup scan.
func (m *StateMachine) ListNonTerminal(ctx context.Context) ([]*types.Order, error) {
	var orders []*types.Order
	err := m.store.Iterate(ctx, types.StorageKeyOrders, func(id string, value []byte) error {
		var order types.Order
		if err := json.Unmarshal(value, &order); err != nil {
			return fmt.Errorf("state: unmarshal order %s during scan: %w", types.TruncateID(id), err)
		}
		if !order.Status.Terminal() {
			orders = append(orders, &order)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("state: list non-terminal orders: %w", err)
	}
	return orders, nil
}

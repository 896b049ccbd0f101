package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/oif-solver/solver-core/pkg/delivery"
	"github.com/oif-solver/solver-core/pkg/eventbus"
	"github.com/oif-solver/solver-core/pkg/orderstd"
	"github.com/oif-solver/solver-core/pkg/registry"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
	"github.com/oif-solver/solver-core/pkg/state"
	"github.com/oif-solver/solver-core/pkg/storage"
)

// Monitor is the callback signature the OrderHandler and SettlementHandler
// use to hand a confirmed-transaction watch off to the engine's spawn
// path (main wires TxMonitorFactory.Watch; TxHandler.Monitor also fits).
type Monitor func(ctx context.Context, orderID string, hash types.TransactionHash, kind types.TransactionType)

// OrderHandler drives the Preparing and Executing order events: building
// the appropriate transaction via the Order-Standard collaborator and
// submitting it via Delivery.
type OrderHandler struct {
	machine   *state.StateMachine
	store     storage.Store
	bus       *eventbus.EventBus
	delivery  delivery.Delivery
	standards *registry.Registry[orderstd.Standard]
	monitor   Monitor
	logger    *log.Logger
}

func NewOrderHandler(
	machine *state.StateMachine,
	store storage.Store,
	bus *eventbus.EventBus,
	d delivery.Delivery,
	standards *registry.Registry[orderstd.Standard],
	monitor Monitor,
	logger *log.Logger,
) *OrderHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[OrderHandler] ", log.LstdFlags)
	}
	return &OrderHandler{machine: machine, store: store, bus: bus, delivery: d, standards: standards, monitor: monitor, logger: logger}
}

// HandlePreparing builds and submits the prepare transaction for an order,
// or skips straight to Executing when the order standard needs no
// separate prepare step.
func (h *OrderHandler) HandlePreparing(ctx context.Context, orderID string, params *types.ExecutionParams) {
	order, err := h.machine.Get(ctx, orderID)
	if err != nil {
		h.logger.Printf("order %s: preparing: load failed: %v", types.TruncateID(orderID), err)
		return
	}
	standard, err := h.standards.Get(order.Standard)
	if err != nil {
		h.logger.Printf("order %s: preparing: %v", types.TruncateID(orderID), err)
		return
	}

	intent, err := h.loadIntent(ctx, orderID)
	if err != nil {
		h.logger.Printf("order %s: preparing: load intent failed: %v", types.TruncateID(orderID), err)
		return
	}

	prepareTx, err := standard.GeneratePrepareTransaction(ctx, intent, *order, *params)
	if err != nil {
		h.logger.Printf("order %s: preparing: build prepare tx failed: %v", types.TruncateID(orderID), err)
		return
	}

	if prepareTx == nil {
		// No prepare step for this standard: move straight to Pending/Executing.
		if _, err := h.machine.SetExecutionParams(ctx, orderID, params); err != nil {
			h.logger.Printf("order %s: preparing: set execution params failed: %v", types.TruncateID(orderID), err)
			return
		}
		if _, err := h.machine.Transition(ctx, orderID, types.Pending()); err != nil {
			h.logger.Printf("order %s: preparing: transition failed: %v", types.TruncateID(orderID), err)
			return
		}
		h.bus.Publish(types.NewOrderEvent(types.OrderEvent{Kind: types.OrderEventExecuting, OrderID: orderID, Params: params}))
		return
	}

	hash, err := h.delivery.Submit(ctx, *prepareTx)
	if err != nil {
		h.logger.Printf("order %s: preparing: submit failed, order left in pre-submit status: %v", types.TruncateID(orderID), err)
		return
	}

	h.bus.Publish(types.NewDeliveryEvent(types.DeliveryEvent{Kind: types.DeliveryEventTransactionPending, OrderID: orderID, TxHash: hash, TxKind: types.TxPrepare}))

	if _, err := h.machine.SetExecutionParams(ctx, orderID, params); err != nil {
		h.logger.Printf("order %s: preparing: set execution params failed: %v", types.TruncateID(orderID), err)
	}
	if _, err := h.machine.Transition(ctx, orderID, types.Pending()); err != nil {
		h.logger.Printf("order %s: preparing: transition failed: %v", types.TruncateID(orderID), err)
	}
	if _, err := h.machine.SetTxHash(ctx, orderID, hash, types.TxPrepare); err != nil {
		h.logger.Printf("order %s: preparing: set tx hash failed: %v", types.TruncateID(orderID), err)
	}

	h.monitor(ctx, orderID, hash, types.TxPrepare)
}

// HandleExecuting builds and submits the fill transaction for an order.
func (h *OrderHandler) HandleExecuting(ctx context.Context, orderID string, params *types.ExecutionParams) {
	order, err := h.machine.Get(ctx, orderID)
	if err != nil {
		h.logger.Printf("order %s: executing: load failed: %v", types.TruncateID(orderID), err)
		return
	}
	standard, err := h.standards.Get(order.Standard)
	if err != nil {
		h.logger.Printf("order %s: executing: %v", types.TruncateID(orderID), err)
		return
	}

	fillTx, err := standard.GenerateFillTransaction(ctx, *order, *params)
	if err != nil {
		h.logger.Printf("order %s: executing: build fill tx failed: %v", types.TruncateID(orderID), err)
		return
	}

	hash, err := h.delivery.Submit(ctx, fillTx)
	if err != nil {
		h.logger.Printf("order %s: executing: submit failed, order left in pre-submit status: %v", types.TruncateID(orderID), err)
		return
	}

	h.bus.Publish(types.NewDeliveryEvent(types.DeliveryEvent{Kind: types.DeliveryEventTransactionPending, OrderID: orderID, TxHash: hash, TxKind: types.TxFill}))

	if _, err := h.machine.SetTxHash(ctx, orderID, hash, types.TxFill); err != nil {
		h.logger.Printf("order %s: executing: set tx hash failed: %v", types.TruncateID(orderID), err)
	}

	h.monitor(ctx, orderID, hash, types.TxFill)
}

func (h *OrderHandler) loadIntent(ctx context.Context, orderID string) (types.Intent, error) {
	raw, err := h.store.Get(ctx, storage.Key(types.StorageKeyIntents, orderID))
	if err != nil {
		return types.Intent{}, fmt.Errorf("load intent %s: %w", types.TruncateID(orderID), err)
	}
	var intent types.Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return types.Intent{}, fmt.Errorf("decode intent %s: %w", types.TruncateID(orderID), err)
	}
	return intent, nil
}

package handlers

import (
	"context"
	"log"

	"github.com/oif-solver/solver-core/pkg/eventbus"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
	"github.com/oif-solver/solver-core/pkg/state"
)

// TxSpawner starts a background watch for a submitted transaction,
// publishing Delivery::TransactionConfirmed or Delivery::TransactionFailed
// once it settles; a watch that times out publishes nothing. Satisfied by
// *monitoring.TxMonitorFactory; expressed as an interface here so
// handlers does not import monitoring.
type TxSpawner interface {
	Watch(ctx context.Context, orderID string, hash types.TransactionHash, kind types.TransactionType)
}

// TxHandler reacts to TransactionConfirmed/TransactionFailed events for
// transactions this solver submitted: advancing the order's status and,
// on a prepare confirmation, starting the fill step. It does not call
// OrderHandler directly — publishing Order::Executing is enough for the
// engine's dispatch loop to route the fill step through the same
// concurrency gate every other order event goes through.
type TxHandler struct {
	machine    *state.StateMachine
	bus        *eventbus.EventBus
	spawner    TxSpawner
	settlement SettlementSpawner
	logger     *log.Logger
}

// SettlementSpawner starts a background watch for fill settlement
// readiness. Satisfied by *monitoring.SettlementMonitorFactory.
type SettlementSpawner interface {
	Watch(ctx context.Context, order types.Order, fillTxHash types.TransactionHash)
}

func NewTxHandler(machine *state.StateMachine, bus *eventbus.EventBus, spawner TxSpawner, settlement SettlementSpawner, logger *log.Logger) *TxHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[TxHandler] ", log.LstdFlags)
	}
	return &TxHandler{machine: machine, bus: bus, spawner: spawner, settlement: settlement, logger: logger}
}

// Monitor matches the Monitor callback signature OrderHandler and
// SettlementHandler invoke after submitting a transaction: it hands the
// watch off to the configured TxSpawner and returns immediately.
func (h *TxHandler) Monitor(ctx context.Context, orderID string, hash types.TransactionHash, kind types.TransactionType) {
	h.spawner.Watch(ctx, orderID, hash, kind)
}

// HandleConfirmed routes a confirmed transaction by kind: a confirmed
// Prepare moves the order to Executed and publishes Order::Executing
// (only when the order has execution params); a confirmed Fill spawns a
// SettlementMonitor; a confirmed Claim finalizes the order. A receipt
// with a failed status is republished as TransactionFailed instead.
func (h *TxHandler) HandleConfirmed(ctx context.Context, orderID string, hash types.TransactionHash, kind types.TransactionType, receipt types.Receipt) {
	if receipt.Status == types.TxStatusFailed {
		h.bus.Publish(types.NewDeliveryEvent(types.DeliveryEvent{Kind: types.DeliveryEventTransactionFailed, OrderID: orderID, TxHash: hash, TxKind: kind, Error: "reverted"}))
		return
	}

	switch kind {
	case types.TxPrepare:
		current, err := h.machine.Get(ctx, orderID)
		if err != nil || current.ExecutionParams == nil {
			h.logger.Printf("order %s: prepare %s confirmed but execution params unavailable (err: %v)", types.TruncateID(orderID), hash.Hash, err)
			return
		}
		order, err := h.machine.Transition(ctx, orderID, types.Executed())
		if err != nil {
			h.logger.Printf("order %s: prepare %s confirmed but transition failed: %v", types.TruncateID(orderID), hash.Hash, err)
			return
		}
		h.bus.Publish(types.NewOrderEvent(types.OrderEvent{Kind: types.OrderEventExecuting, OrderID: orderID, Params: order.ExecutionParams}))

	case types.TxFill:
		order, err := h.machine.Get(ctx, orderID)
		if err != nil {
			h.logger.Printf("order %s: fill %s confirmed but load failed: %v", types.TruncateID(orderID), hash.Hash, err)
			return
		}
		if h.settlement != nil {
			h.settlement.Watch(ctx, *order, hash)
		}

	case types.TxClaim:
		if _, err := h.machine.Transition(ctx, orderID, types.Finalized()); err != nil {
			h.logger.Printf("order %s: claim %s confirmed but transition failed: %v", types.TruncateID(orderID), hash.Hash, err)
			return
		}
		h.bus.Publish(types.NewSettlementEvent(types.SettlementEvent{Kind: types.SettlementEventCompleted, OrderID: orderID}))
	}
}

// HandleFailed transitions the order to Failed(kind). Terminal; no
// automatic retry.
func (h *TxHandler) HandleFailed(ctx context.Context, orderID string, kind types.TransactionType) {
	if _, err := h.machine.Transition(ctx, orderID, types.Failed(kind)); err != nil {
		h.logger.Printf("order %s: %s tx failed but transition failed: %v", types.TruncateID(orderID), kind, err)
	}
}

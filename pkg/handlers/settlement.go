package handlers

import (
	"context"
	"log"
	"sync"

	"github.com/oif-solver/solver-core/pkg/delivery"
	"github.com/oif-solver/solver-core/pkg/eventbus"
	"github.com/oif-solver/solver-core/pkg/orderstd"
	"github.com/oif-solver/solver-core/pkg/registry"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
	"github.com/oif-solver/solver-core/pkg/state"
)

const defaultClaimBatchSize = 1

// SettlementHandler accumulates order ids that have reached ClaimReady
// and drains them in batches, building and submitting a claim
// transaction for each.
type SettlementHandler struct {
	machine   *state.StateMachine
	bus       *eventbus.EventBus
	delivery  delivery.Delivery
	standards *registry.Registry[orderstd.Standard]
	monitor   Monitor
	batchSize int
	logger    *log.Logger

	mu      sync.Mutex
	pending []string
}

func NewSettlementHandler(
	machine *state.StateMachine,
	bus *eventbus.EventBus,
	d delivery.Delivery,
	standards *registry.Registry[orderstd.Standard],
	monitor Monitor,
	batchSize int,
	logger *log.Logger,
) *SettlementHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[SettlementHandler] ", log.LstdFlags)
	}
	if batchSize <= 0 {
		batchSize = defaultClaimBatchSize
	}
	return &SettlementHandler{machine: machine, bus: bus, delivery: d, standards: standards, monitor: monitor, batchSize: batchSize, logger: logger}
}

// HandleClaimReady adds an order id to the pending claim batch. When the
// batch reaches its configured size, the whole batch is drained in the
// calling task (the engine's tx_gate dispatch). An unfilled batch is
// drained only by Flush; one still pending when the process exits is
// lost and will be re-derived by the next start's recovery pass and
// SettlementMonitor.
func (h *SettlementHandler) HandleClaimReady(ctx context.Context, orderID string) {
	h.mu.Lock()
	h.pending = append(h.pending, orderID)
	var batch []string
	if len(h.pending) >= h.batchSize {
		batch = h.pending
		h.pending = nil
	}
	h.mu.Unlock()

	if batch != nil {
		h.drain(ctx, batch)
	}
}

// Flush drains whatever is currently pending, regardless of batch size.
// main calls it once after the engine has stopped, on a best-effort
// basis: a claim that fails here is not retried.
func (h *SettlementHandler) Flush(ctx context.Context) {
	h.mu.Lock()
	batch := h.pending
	h.pending = nil
	h.mu.Unlock()

	if len(batch) > 0 {
		h.drain(ctx, batch)
	}
}

// drain submits each claim in orderIDs one at a time. Sequential by
// design: a batch drained from HandleClaimReady runs under a single
// tx_gate permit, and
// concurrent Submit calls here would let the batch size silently
// multiply the solver's in-flight transaction count.
func (h *SettlementHandler) drain(ctx context.Context, orderIDs []string) {
	for _, id := range orderIDs {
		h.claim(ctx, id)
	}
}

func (h *SettlementHandler) claim(ctx context.Context, orderID string) {
	order, err := h.machine.Get(ctx, orderID)
	if err != nil {
		h.logger.Printf("order %s: claim: load failed: %v", types.TruncateID(orderID), err)
		return
	}
	if order.FillProof == nil {
		h.logger.Printf("order %s: claim: no fill proof recorded, skipping", types.TruncateID(orderID))
		return
	}

	standard, err := h.standards.Get(order.Standard)
	if err != nil {
		h.logger.Printf("order %s: claim: %v", types.TruncateID(orderID), err)
		return
	}

	for _, next := range []types.OrderStatus{types.Pending(), types.Executed(), types.Settled()} {
		if !types.IsValidTransition(order.Status, next) {
			continue
		}
		updated, err := h.machine.Transition(ctx, orderID, next)
		if err != nil {
			h.logger.Printf("order %s: claim: transition to %s failed: %v", types.TruncateID(orderID), next, err)
			return
		}
		order = updated
	}

	claimTx, err := standard.GenerateClaimTransaction(ctx, *order, *order.FillProof)
	if err != nil {
		h.logger.Printf("order %s: claim: build claim tx failed: %v", types.TruncateID(orderID), err)
		return
	}

	hash, err := h.delivery.Submit(ctx, claimTx)
	if err != nil {
		h.logger.Printf("order %s: claim: submit failed: %v", types.TruncateID(orderID), err)
		return
	}

	h.bus.Publish(types.NewDeliveryEvent(types.DeliveryEvent{Kind: types.DeliveryEventTransactionPending, OrderID: orderID, TxHash: hash, TxKind: types.TxClaim}))

	if _, err := h.machine.SetTxHash(ctx, orderID, hash, types.TxClaim); err != nil {
		h.logger.Printf("order %s: claim: set tx hash failed: %v", types.TruncateID(orderID), err)
	}

	h.monitor(ctx, orderID, hash, types.TxClaim)
}

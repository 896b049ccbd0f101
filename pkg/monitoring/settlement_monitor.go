package monitoring

import (
	"context"
	"log"
	"time"

	"github.com/oif-solver/solver-core/pkg/eventbus"
	"github.com/oif-solver/solver-core/pkg/settlement"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
	"github.com/oif-solver/solver-core/pkg/state"
)

// SettlementMonitorFactory spawns one SettlementMonitor task per
// confirmed fill transaction.
type SettlementMonitorFactory struct {
	settlement   settlement.Settlement
	machine      *state.StateMachine
	bus          *eventbus.EventBus
	pollInterval time.Duration
	timeout      time.Duration
	logger       *log.Logger
}

func NewSettlementMonitorFactory(s settlement.Settlement, machine *state.StateMachine, bus *eventbus.EventBus, timeout time.Duration, logger *log.Logger) *SettlementMonitorFactory {
	if logger == nil {
		logger = log.New(log.Writer(), "[SettlementMonitor] ", log.LstdFlags)
	}
	return &SettlementMonitorFactory{
		settlement:   s,
		machine:      machine,
		bus:          bus,
		pollInterval: defaultPollInterval,
		timeout:      timeout,
		logger:       logger,
	}
}

// Watch fetches the attestation for a confirmed fill, records it, and
// polls Settlement.CanClaim roughly every 3 seconds until it returns true
// or the configured timeout elapses.
func (f *SettlementMonitorFactory) Watch(ctx context.Context, order types.Order, fillTxHash types.TransactionHash) {
	go f.run(ctx, order, fillTxHash)
}

func (f *SettlementMonitorFactory) run(ctx context.Context, order types.Order, fillTxHash types.TransactionHash) {
	proof, err := f.settlement.GetAttestation(ctx, order, fillTxHash)
	if err != nil {
		f.logger.Printf("order %s: fetch attestation failed, exiting: %v", types.TruncateID(order.ID), err)
		return
	}

	if _, err := f.machine.SetFillProof(ctx, order.ID, &proof); err != nil {
		f.logger.Printf("order %s: persist fill proof failed: %v", types.TruncateID(order.ID), err)
	}

	f.bus.Publish(types.NewSettlementEvent(types.SettlementEvent{
		Kind:      types.SettlementEventProofReady,
		OrderID:   order.ID,
		FillProof: &proof,
	}))

	deadline := time.Now().Add(f.timeout)
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Now().After(deadline) {
				f.logger.Printf("order %s: timed out waiting for claim readiness", types.TruncateID(order.ID))
				return
			}
			if f.settlement.CanClaim(ctx, order, proof) {
				f.bus.Publish(types.NewSettlementEvent(types.SettlementEvent{Kind: types.SettlementEventClaimReady, OrderID: order.ID}))
				return
			}
		}
	}
}

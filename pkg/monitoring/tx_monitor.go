// Package monitoring implements the two long-lived polling tasks spawned
// per in-flight transaction: TxMonitor watches a submitted transaction to
// confirmation, and SettlementMonitor watches a confirmed fill for
// claim-readiness.
package monitoring

import (
	"context"
	"log"
	"time"

	"github.com/oif-solver/solver-core/pkg/delivery"
	"github.com/oif-solver/solver-core/pkg/eventbus"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

const defaultPollInterval = 3 * time.Second

// TxMonitorFactory spawns one TxMonitor task per call. It holds the
// shared collaborators every spawned task needs; per-task parameters
// (order id, hash, kind) come through Watch.
type TxMonitorFactory struct {
	delivery      delivery.Delivery
	bus           *eventbus.EventBus
	confirmations uint64
	pollInterval  time.Duration
	timeout       time.Duration
	logger        *log.Logger
}

func NewTxMonitorFactory(d delivery.Delivery, bus *eventbus.EventBus, confirmations uint64, timeout time.Duration, logger *log.Logger) *TxMonitorFactory {
	if logger == nil {
		logger = log.New(log.Writer(), "[TxMonitor] ", log.LstdFlags)
	}
	return &TxMonitorFactory{
		delivery:      d,
		bus:           bus,
		confirmations: confirmations,
		pollInterval:  defaultPollInterval,
		timeout:       timeout,
		logger:        logger,
	}
}

// Watch spawns a goroutine that polls Delivery.GetStatus for the given
// transaction roughly every 3 seconds until it settles or the configured
// timeout elapses.
func (f *TxMonitorFactory) Watch(ctx context.Context, orderID string, hash types.TransactionHash, kind types.TransactionType) {
	go f.run(ctx, orderID, hash, kind)
}

func (f *TxMonitorFactory) run(ctx context.Context, orderID string, hash types.TransactionHash, kind types.TransactionType) {
	deadline := time.Now().Add(f.timeout)
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Now().After(deadline) {
				f.logger.Printf("order %s: tx %s (%s) timed out waiting for confirmation, exiting without publishing", types.TruncateID(orderID), hash.Hash, kind)
				return
			}

			ok, err := f.delivery.GetStatus(ctx, hash)
			if err != nil {
				f.logger.Printf("order %s: tx %s (%s) status check pending: %v", types.TruncateID(orderID), hash.Hash, kind, err)
				continue
			}

			if !ok {
				f.bus.Publish(types.NewDeliveryEvent(types.DeliveryEvent{
					Kind:    types.DeliveryEventTransactionFailed,
					OrderID: orderID,
					TxHash:  hash,
					TxKind:  kind,
					Error:   "reverted",
				}))
				return
			}

			receipt, err := f.delivery.WaitForConfirmation(ctx, hash, f.confirmations)
			if err != nil {
				f.logger.Printf("order %s: tx %s (%s) confirmed but receipt fetch failed, exiting without publishing: %v", types.TruncateID(orderID), hash.Hash, kind, err)
				return
			}

			f.bus.Publish(types.NewDeliveryEvent(types.DeliveryEvent{
				Kind:    types.DeliveryEventTransactionConfirmed,
				OrderID: orderID,
				TxHash:  hash,
				TxKind:  kind,
				Receipt: &receipt,
			}))
			return
		}
	}
}

// Package engine assembles every collaborator and handler into the
// running solver process: the ContextBuilder, TokenApprovals, Recovery,
// and the Engine event loop itself.
package engine

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/oif-solver/solver-core/pkg/delivery"
	"github.com/oif-solver/solver-core/pkg/discovery"
	"github.com/oif-solver/solver-core/pkg/eventbus"
	"github.com/oif-solver/solver-core/pkg/handlers"
	"github.com/oif-solver/solver-core/pkg/ops"
	"github.com/oif-solver/solver-core/pkg/settlement"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
	"github.com/oif-solver/solver-core/pkg/state"
	"github.com/oif-solver/solver-core/pkg/storage"
)

// gate is a counting semaphore built on a buffered channel. Acquire blocks
// until a permit is free or ctx is done; the permit is released by the
// caller once its spawned task finishes.
type gate struct {
	permits chan struct{}
}

func newGate(capacity int) *gate {
	return &gate{permits: make(chan struct{}, capacity)}
}

func (g *gate) acquire(ctx context.Context) bool {
	select {
	case g.permits <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *gate) release() {
	<-g.permits
}

// Engine owns the intent queue, the bus subscription, and the two
// concurrency gates, and is the sole dispatcher of intents and events to
// handlers.
type Engine struct {
	store      storage.Store
	delivery   delivery.Delivery
	discovery  discovery.Discovery
	settlement settlement.Settlement
	machine    *state.StateMachine
	bus        *eventbus.EventBus

	intentHandler     *handlers.IntentHandler
	orderHandler      *handlers.OrderHandler
	txHandler         *handlers.TxHandler
	settlementHandler *handlers.SettlementHandler
	tokenApprovals    *TokenApprovals
	recovery          *Recovery
	metrics           *ops.Metrics

	cleanupInterval time.Duration

	txGate      *gate
	generalGate *gate

	wg sync.WaitGroup

	logger *log.Logger
}

type Config struct {
	CleanupInterval    time.Duration
	TxGateCapacity     int
	GeneralGateCapacity int
}

func New(
	store storage.Store,
	d delivery.Delivery,
	disc discovery.Discovery,
	s settlement.Settlement,
	machine *state.StateMachine,
	bus *eventbus.EventBus,
	intentHandler *handlers.IntentHandler,
	orderHandler *handlers.OrderHandler,
	txHandler *handlers.TxHandler,
	settlementHandler *handlers.SettlementHandler,
	tokenApprovals *TokenApprovals,
	recovery *Recovery,
	metrics *ops.Metrics,
	cfg Config,
	logger *log.Logger,
) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[Engine] ", log.LstdFlags)
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.TxGateCapacity <= 0 {
		cfg.TxGateCapacity = 1
	}
	if cfg.GeneralGateCapacity <= 0 {
		cfg.GeneralGateCapacity = 100
	}
	return &Engine{
		store:             store,
		delivery:          d,
		discovery:         disc,
		settlement:        s,
		machine:           machine,
		bus:               bus,
		intentHandler:     intentHandler,
		orderHandler:      orderHandler,
		txHandler:         txHandler,
		settlementHandler: settlementHandler,
		tokenApprovals:    tokenApprovals,
		recovery:          recovery,
		metrics:           metrics,
		cleanupInterval:   cfg.CleanupInterval,
		txGate:            newGate(cfg.TxGateCapacity),
		generalGate:       newGate(cfg.GeneralGateCapacity),
		logger:            logger,
	}
}

// Run executes startup (token approvals, recovery) then the engine's
// main dispatch loop, blocking until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	sub := e.bus.Subscribe()
	defer sub.Close()

	if e.tokenApprovals != nil {
		if err := e.tokenApprovals.Run(ctx); err != nil {
			return err
		}
	}

	orphaned, err := e.recovery.Run(ctx)
	if err != nil {
		e.logger.Printf("recovery failed to complete cleanly: %v", err)
	}

	intentQueue := make(chan types.Intent, 256)
	if err := e.discovery.StartAll(ctx, intentQueue); err != nil {
		return err
	}

	for _, intent := range orphaned {
		select {
		case intentQueue <- intent:
		default:
			e.logger.Printf("intent queue full, dropping orphaned intent %s", types.TruncateID(intent.ID))
		}
	}

	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	e.wg.Add(1)
	go e.runCleanup(cleanupCtx)

	e.loop(ctx, intentQueue, sub)

	cancelCleanup()
	_ = e.discovery.StopAll(context.Background())
	e.wg.Wait()
	return nil
}

func (e *Engine) runCleanup(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.store.CleanupExpired(ctx)
			if err != nil {
				e.logger.Printf("cleanup_expired failed: %v", err)
				continue
			}
			if n > 0 {
				e.logger.Printf("cleanup_expired removed %d expired record(s)", n)
			}
			e.recomputeOrderStatusMetrics(ctx)
		}
	}
}

// recomputeOrderStatusMetrics recounts every order by status and resets the
// OrdersByStatus gauge, piggybacking on the same ticker as cleanup_expired
// since both require a full scan of the orders namespace.
func (e *Engine) recomputeOrderStatusMetrics(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	counts := map[string]float64{}
	err := e.store.Iterate(ctx, types.StorageKeyOrders, func(id string, value []byte) error {
		var order types.Order
		if err := json.Unmarshal(value, &order); err != nil {
			return nil
		}
		counts[string(order.Status.Kind)]++
		return nil
	})
	if err != nil {
		e.logger.Printf("recompute order status metrics failed: %v", err)
		return
	}
	e.metrics.OrdersByStatus.Reset()
	for status, count := range counts {
		e.metrics.OrdersByStatus.WithLabelValues(status).Set(count)
	}
}

func (e *Engine) loop(ctx context.Context, intentQueue <-chan types.Intent, sub *eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return

		case intent, ok := <-intentQueue:
			if !ok {
				return
			}
			if e.metrics != nil {
				e.metrics.IntentsDiscovered.Inc()
			}
			e.dispatchGeneral(ctx, func(ctx context.Context) {
				e.intentHandler.Handle(ctx, intent)
			})

		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			e.dispatchEvent(ctx, event)
		}
	}
}

// dispatchEvent routes a bus event to its handler under the appropriate
// gate. Discovery events update metrics only; IntentDiscovered and
// IntentValidated carry no further handler action.
func (e *Engine) dispatchEvent(ctx context.Context, event types.SolverEvent) {
	switch event.Kind {
	case types.EventDiscovery:
		if e.metrics != nil && event.Discovery != nil && event.Discovery.Kind == types.DiscoveryEventIntentRejected {
			e.metrics.IntentsRejected.Inc()
		}
	case types.EventOrder:
		e.dispatchOrderEvent(ctx, event.Order)
	case types.EventDelivery:
		e.dispatchDeliveryEvent(ctx, event.Delivery)
	case types.EventSettlement:
		e.dispatchSettlementEvent(ctx, event.Settlement)
	}
}

func (e *Engine) dispatchOrderEvent(ctx context.Context, ev *types.OrderEvent) {
	if ev == nil {
		return
	}
	switch ev.Kind {
	case types.OrderEventPreparing:
		e.dispatchTx(ctx, func(ctx context.Context) {
			e.orderHandler.HandlePreparing(ctx, ev.OrderID, ev.Params)
		})
	case types.OrderEventExecuting:
		e.dispatchTx(ctx, func(ctx context.Context) {
			e.orderHandler.HandleExecuting(ctx, ev.OrderID, ev.Params)
		})
	case types.OrderEventSkipped, types.OrderEventDeferred:
		// No further action; these are terminal observations for this intent.
	}
}

func (e *Engine) dispatchDeliveryEvent(ctx context.Context, ev *types.DeliveryEvent) {
	if ev == nil {
		return
	}
	switch ev.Kind {
	case types.DeliveryEventTransactionConfirmed:
		if e.metrics != nil {
			e.metrics.TxConfirmed.WithLabelValues(string(ev.TxKind)).Inc()
		}
		e.dispatchGeneral(ctx, func(ctx context.Context) {
			e.txHandler.HandleConfirmed(ctx, ev.OrderID, ev.TxHash, ev.TxKind, *ev.Receipt)
		})
	case types.DeliveryEventTransactionFailed:
		if e.metrics != nil {
			e.metrics.TxFailed.WithLabelValues(string(ev.TxKind)).Inc()
		}
		e.dispatchGeneral(ctx, func(ctx context.Context) {
			e.txHandler.HandleFailed(ctx, ev.OrderID, ev.TxKind)
		})
	case types.DeliveryEventTransactionPending:
		if e.metrics != nil {
			e.metrics.TxSubmitted.WithLabelValues(string(ev.TxKind)).Inc()
		}
	}
}

func (e *Engine) dispatchSettlementEvent(ctx context.Context, ev *types.SettlementEvent) {
	if ev == nil {
		return
	}
	switch ev.Kind {
	case types.SettlementEventClaimReady:
		e.dispatchTx(ctx, func(ctx context.Context) {
			e.settlementHandler.HandleClaimReady(ctx, ev.OrderID)
		})
	case types.SettlementEventFillDetected, types.SettlementEventProofReady, types.SettlementEventCompleted:
		// Observational only.
	}
}

// dispatchTx spawns fn in a new goroutine holding the tx_gate permit:
// every path that submits a transaction (Preparing, Executing,
// claim-batch drains) goes through here.
func (e *Engine) dispatchTx(ctx context.Context, fn func(ctx context.Context)) {
	if !e.txGate.acquire(ctx) {
		e.logger.Printf("tx_gate closed, dropping dispatch")
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.txGate.release()
		fn(ctx)
	}()
}

// dispatchGeneral spawns fn in a new goroutine holding the general_gate
// permit: intent handling and tx-confirmed/tx-failed routing.
func (e *Engine) dispatchGeneral(ctx context.Context, fn func(ctx context.Context)) {
	if !e.generalGate.acquire(ctx) {
		e.logger.Printf("general_gate closed, dropping dispatch")
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.generalGate.release()
		fn(ctx)
	}()
}

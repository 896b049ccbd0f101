// Package handlers implements the four bus-driven handlers that carry an
// order through its lifecycle: IntentHandler, OrderHandler, TxHandler, and
// SettlementHandler.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/oif-solver/solver-core/pkg/eventbus"
	"github.com/oif-solver/solver-core/pkg/orderstd"
	"github.com/oif-solver/solver-core/pkg/registry"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
	"github.com/oif-solver/solver-core/pkg/state"
	"github.com/oif-solver/solver-core/pkg/storage"
	"github.com/oif-solver/solver-core/pkg/strategy"
)

// ContextBuilder is the subset of engine.ContextBuilder the IntentHandler
// needs; expressed as an interface here to avoid handlers depending on
// the engine package (engine depends on handlers, not the reverse).
type ContextBuilder interface {
	Build(ctx context.Context, order *types.Order, solverAddress string) types.ExecutionContext
}

// IntentHandler validates a freshly discovered intent into an order and
// asks the configured ExecutionStrategy what to do with it.
type IntentHandler struct {
	machine        *state.StateMachine
	store          storage.Store
	bus            *eventbus.EventBus
	standards      *registry.Registry[orderstd.Standard]
	strategies     *registry.Registry[strategy.Strategy]
	contextBuilder ContextBuilder
	solverAddress  string
	strategyName   string
	logger         *log.Logger
}

func NewIntentHandler(
	machine *state.StateMachine,
	store storage.Store,
	bus *eventbus.EventBus,
	standards *registry.Registry[orderstd.Standard],
	strategies *registry.Registry[strategy.Strategy],
	contextBuilder ContextBuilder,
	solverAddress, strategyName string,
	logger *log.Logger,
) *IntentHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[IntentHandler] ", log.LstdFlags)
	}
	return &IntentHandler{
		machine:        machine,
		store:          store,
		bus:            bus,
		standards:      standards,
		strategies:     strategies,
		contextBuilder: contextBuilder,
		solverAddress:  solverAddress,
		strategyName:   strategyName,
		logger:         logger,
	}
}

// Handle validates a discovered intent into an order, persists it, and
// asks the configured execution strategy what to do with it next.
func (h *IntentHandler) Handle(ctx context.Context, intent types.Intent) {
	standard, err := h.standards.Get(intent.Standard)
	if err != nil {
		h.rejectIntent(intent, fmt.Sprintf("no order-standard registered: %v", err))
		return
	}

	order, err := standard.ValidateIntent(ctx, intent, h.solverAddress)
	if err != nil {
		h.rejectIntent(intent, err.Error())
		return
	}

	if err := h.machine.Store(ctx, &order); err != nil {
		h.logger.Printf("order %s: store failed, dropping: %v", types.TruncateID(order.ID), err)
		return
	}

	rawIntent, err := marshalIntent(intent)
	if err == nil {
		if err := h.store.Put(ctx, storage.Key(types.StorageKeyIntents, order.ID), rawIntent, 0); err != nil {
			h.logger.Printf("order %s: persist raw intent failed: %v", types.TruncateID(order.ID), err)
		}
	} else {
		h.logger.Printf("order %s: marshal raw intent failed: %v", types.TruncateID(order.ID), err)
	}

	h.bus.Publish(types.NewDiscoveryEvent(types.DiscoveryEvent{
		Kind:    types.DiscoveryEventIntentValidated,
		Intent:  intent,
		OrderID: order.ID,
	}))

	execCtx := h.contextBuilder.Build(ctx, &order, h.solverAddress)

	strat, err := h.strategies.Get(h.strategyName)
	if err != nil {
		h.logger.Printf("order %s: no execution strategy registered: %v", types.TruncateID(order.ID), err)
		return
	}

	decision, err := strat.Decide(ctx, execCtx)
	if err != nil {
		h.logger.Printf("order %s: strategy decide failed: %v", types.TruncateID(order.ID), err)
		return
	}

	h.publishDecision(order.ID, intent.Source, decision)
}

func (h *IntentHandler) publishDecision(orderID string, source types.IntentSource, decision types.ExecutionDecision) {
	switch decision.Kind {
	case types.DecisionExecute:
		kind := types.OrderEventExecuting
		if source == types.IntentSourceOffChain {
			kind = types.OrderEventPreparing
		}
		h.bus.Publish(types.NewOrderEvent(types.OrderEvent{Kind: kind, OrderID: orderID, Params: decision.Params}))
	case types.DecisionSkip:
		h.bus.Publish(types.NewOrderEvent(types.OrderEvent{Kind: types.OrderEventSkipped, OrderID: orderID, Reason: decision.Reason}))
	case types.DecisionDefer:
		// Deferred intents are not requeued by this handler; the
		// strategy's published duration is informational only.
		h.bus.Publish(types.NewOrderEvent(types.OrderEvent{Kind: types.OrderEventDeferred, OrderID: orderID, Defer: decision.Defer}))
	}
}

func (h *IntentHandler) rejectIntent(intent types.Intent, reason string) {
	h.logger.Printf("intent %s rejected: %s", types.TruncateID(intent.ID), reason)
	h.bus.Publish(types.NewDiscoveryEvent(types.DiscoveryEvent{
		Kind:   types.DiscoveryEventIntentRejected,
		Intent: intent,
		Reason: reason,
	}))
}

func marshalIntent(intent types.Intent) ([]byte, error) {
	return json.Marshal(intent)
}

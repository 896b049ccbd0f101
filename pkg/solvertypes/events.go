package types

// SolverEvent is the closed set of events carried on the EventBus. Exactly
// one of the embedded pointers is non-nil; Kind names which one. Handlers
// switch on Kind rather than type-asserting. The compiler does not check
// these switches for completeness: a switch without a case for a new
// event family ignores it.
type SolverEvent struct {
	Kind       EventKind
	Discovery  *DiscoveryEvent
	Order      *OrderEvent
	Delivery   *DeliveryEvent
	Settlement *SettlementEvent
}

type EventKind string

const (
	EventDiscovery  EventKind = "discovery"
	EventOrder      EventKind = "order"
	EventDelivery   EventKind = "delivery"
	EventSettlement EventKind = "settlement"
)

func NewDiscoveryEvent(e DiscoveryEvent) SolverEvent {
	return SolverEvent{Kind: EventDiscovery, Discovery: &e}
}

func NewOrderEvent(e OrderEvent) SolverEvent {
	return SolverEvent{Kind: EventOrder, Order: &e}
}

func NewDeliveryEvent(e DeliveryEvent) SolverEvent {
	return SolverEvent{Kind: EventDelivery, Delivery: &e}
}

func NewSettlementEvent(e SettlementEvent) SolverEvent {
	return SolverEvent{Kind: EventSettlement, Settlement: &e}
}

// DiscoveryEventKind is Discovery::{IntentDiscovered, IntentValidated, IntentRejected}.
type DiscoveryEventKind string

const (
	DiscoveryEventIntentDiscovered DiscoveryEventKind = "intent_discovered"
	DiscoveryEventIntentValidated  DiscoveryEventKind = "intent_validated"
	DiscoveryEventIntentRejected   DiscoveryEventKind = "intent_rejected"
)

type DiscoveryEvent struct {
	Kind   DiscoveryEventKind
	Intent Intent
	// OrderID is set once validation has produced an order (IntentValidated).
	OrderID string
	// Reason is set on IntentRejected.
	Reason string
}

// OrderEventKind is Order::{Preparing, Executing, Skipped, Deferred}.
type OrderEventKind string

const (
	OrderEventPreparing OrderEventKind = "preparing"
	OrderEventExecuting OrderEventKind = "executing"
	OrderEventSkipped   OrderEventKind = "skipped"
	OrderEventDeferred  OrderEventKind = "deferred"
)

type OrderEvent struct {
	Kind    OrderEventKind
	OrderID string
	Params  *ExecutionParams // set on Preparing/Executing
	Reason  string           // set on Skipped
	Defer   string           // set on Deferred (opaque duration string, e.g. "5m")
}

// DeliveryEventKind is Delivery::{TransactionPending, TransactionConfirmed, TransactionFailed}.
type DeliveryEventKind string

const (
	DeliveryEventTransactionPending   DeliveryEventKind = "transaction_pending"
	DeliveryEventTransactionConfirmed DeliveryEventKind = "transaction_confirmed"
	DeliveryEventTransactionFailed    DeliveryEventKind = "transaction_failed"
)

type DeliveryEvent struct {
	Kind    DeliveryEventKind
	OrderID string
	TxHash  TransactionHash
	TxKind  TransactionType
	Receipt *Receipt // set on TransactionConfirmed
	Error   string   // set on TransactionFailed
}

// SettlementEventKind is Settlement::{FillDetected, ProofReady, ClaimReady, Completed}.
type SettlementEventKind string

const (
	SettlementEventFillDetected SettlementEventKind = "fill_detected"
	SettlementEventProofReady   SettlementEventKind = "proof_ready"
	SettlementEventClaimReady   SettlementEventKind = "claim_ready"
	SettlementEventCompleted    SettlementEventKind = "completed"
)

type SettlementEvent struct {
	Kind      SettlementEventKind
	OrderID   string
	FillProof *FillProof
}

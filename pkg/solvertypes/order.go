// Package types defines the shared data model for the solver core: orders,
// intents, events, and the small value types that flow between handlers,
// monitors, and the collaborator interfaces in pkg/storage, pkg/delivery,
// pkg/orderstd, pkg/strategy, pkg/settlement, and pkg/account.
package types

import (
	"encoding/json"
	"fmt"
)

// TransactionType identifies which stage of an order's lifecycle a
// submitted transaction belongs to.
type TransactionType string

const (
	TxPrepare TransactionType = "prepare"
	TxFill    TransactionType = "fill"
	TxClaim   TransactionType = "claim"
)

// OrderStatusKind is the bare status category, stripped of the TransactionType
// payload that Failed carries. Used only for transition-table lookups.
type OrderStatusKind string

const (
	StatusKindCreated   OrderStatusKind = "created"
	StatusKindPending   OrderStatusKind = "pending"
	StatusKindExecuted  OrderStatusKind = "executed"
	StatusKindSettled   OrderStatusKind = "settled"
	StatusKindFinalized OrderStatusKind = "finalized"
	StatusKindFailed    OrderStatusKind = "failed"
)

// OrderStatus is the closed tagged union for an order's lifecycle state.
// Failed carries the transaction kind that caused the failure; every other
// variant carries no payload. Zero value is invalid; always construct via
// the helper constructors below.
type OrderStatus struct {
	Kind   OrderStatusKind
	Failed TransactionType // only meaningful when Kind == StatusKindFailed
}

func Created() OrderStatus   { return OrderStatus{Kind: StatusKindCreated} }
func Pending() OrderStatus   { return OrderStatus{Kind: StatusKindPending} }
func Executed() OrderStatus  { return OrderStatus{Kind: StatusKindExecuted} }
func Settled() OrderStatus   { return OrderStatus{Kind: StatusKindSettled} }
func Finalized() OrderStatus { return OrderStatus{Kind: StatusKindFinalized} }
func Failed(kind TransactionType) OrderStatus {
	return OrderStatus{Kind: StatusKindFailed, Failed: kind}
}

func (s OrderStatus) String() string {
	if s.Kind == StatusKindFailed {
		return fmt.Sprintf("Failed(%s)", s.Failed)
	}
	return string(s.Kind)
}

func (s OrderStatus) Terminal() bool {
	return s.Kind == StatusKindFinalized || s.Kind == StatusKindFailed
}

// orderStatusWire is the JSON representation: {"kind":"failed","failed":"fill"}.
type orderStatusWire struct {
	Kind   OrderStatusKind `json:"kind"`
	Failed TransactionType `json:"failed,omitempty"`
}

func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderStatusWire{Kind: s.Kind, Failed: s.Failed})
}

func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var w orderStatusWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.Kind = w.Kind
	s.Failed = w.Failed
	return nil
}

// transitionTable is the single source of truth for invariant 1: status
// never regresses. Finalized and Failed are absorbing (no outgoing edges).
var transitionTable = map[OrderStatusKind]map[OrderStatusKind]bool{
	StatusKindCreated:   {StatusKindPending: true, StatusKindFailed: true},
	StatusKindPending:   {StatusKindExecuted: true, StatusKindFailed: true},
	StatusKindExecuted:  {StatusKindSettled: true, StatusKindFailed: true},
	StatusKindSettled:   {StatusKindFinalized: true, StatusKindFailed: true},
	StatusKindFinalized: {},
	StatusKindFailed:    {},
}

// IsValidTransition reports whether moving from `from` to `to` is legal
// under the transition table. Only the status kind matters, not the Failed
// payload of either side.
func IsValidTransition(from, to OrderStatus) bool {
	next, ok := transitionTable[from.Kind]
	if !ok {
		return false
	}
	return next[to.Kind]
}

// ExecutionParams are the gas parameters an ExecutionStrategy chooses at
// decision time, carried forward into the prepare/fill submission.
type ExecutionParams struct {
	GasPrice   string `json:"gas_price"`
	PriorityFee string `json:"priority_fee,omitempty"`
}

// FillProof is the opaque attestation that authorizes a claim.
type FillProof struct {
	TxHash          TransactionHash `json:"tx_hash"`
	BlockNumber     uint64          `json:"block_number"`
	AttestationData []byte          `json:"attestation_data,omitempty"`
	FilledTimestamp uint64          `json:"filled_timestamp"`
	OracleAddress   string          `json:"oracle_address"`
}

// Order is the central record: a validated intent plus the solver's
// execution state. The StateMachine is the sole writer; every other
// component reads it or passes a mutation through the StateMachine.
type Order struct {
	ID        string      `json:"id"`
	Standard  string      `json:"standard"`
	CreatedAt uint64      `json:"created_at"`
	UpdatedAt uint64      `json:"updated_at"`
	Status    OrderStatus `json:"status"`

	// StandardPayload is opaque to the core; only the Order-Standard
	// collaborator named by Standard understands its contents.
	StandardPayload json.RawMessage `json:"standard_payload"`

	SolverAddress string `json:"solver_address"`
	QuoteID       string `json:"quote_id,omitempty"`

	InputChainIDs  []uint64 `json:"input_chain_ids"`
	OutputChainIDs []uint64 `json:"output_chain_ids"`

	ExecutionParams *ExecutionParams `json:"execution_params,omitempty"`

	PrepareTxHash *TransactionHash `json:"prepare_tx_hash,omitempty"`
	FillTxHash    *TransactionHash `json:"fill_tx_hash,omitempty"`
	ClaimTxHash   *TransactionHash `json:"claim_tx_hash,omitempty"`

	FillProof *FillProof `json:"fill_proof,omitempty"`
}

// OriginChainID is the chain where prepare/claim transactions land: the
// first entry of InputChainIDs.
func (o *Order) OriginChainID() (uint64, bool) {
	if len(o.InputChainIDs) == 0 {
		return 0, false
	}
	return o.InputChainIDs[0], true
}

// DestinationChainID is the chain where the fill transaction lands: the
// first entry of OutputChainIDs.
func (o *Order) DestinationChainID() (uint64, bool) {
	if len(o.OutputChainIDs) == 0 {
		return 0, false
	}
	return o.OutputChainIDs[0], true
}

// ChainIDForTxKind returns the chain a given transaction kind is routed to:
// origin for Prepare/Claim, destination for Fill.
func (o *Order) ChainIDForTxKind(kind TransactionType) (uint64, bool) {
	switch kind {
	case TxFill:
		return o.DestinationChainID()
	default:
		return o.OriginChainID()
	}
}

// TruncateID renders an id truncated to 8 hex-ish characters plus "..", the
// form used in structured logs per the error-handling design.
func TruncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + ".."
}

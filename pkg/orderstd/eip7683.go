package orderstd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// FillInstruction names where and how to fill one leg of an EIP-7683
// resolved order.
type FillInstruction struct {
	DestinationChainID uint64 `json:"destination_chain_id"`
	DestinationSettler  string `json:"destination_settler"`
	OriginData          string `json:"origin_data"` // hex-encoded
}

// Eip7683Payload is the StandardPayload shape this standard reads and
// writes. It is opaque to everything outside this package.
type Eip7683Payload struct {
	OrderID          string            `json:"order_id"` // hex-encoded bytes32
	OriginChainID    uint64            `json:"origin_chain_id"`
	OriginSettler    string            `json:"origin_settler"`
	FillInstructions []FillInstruction `json:"fill_instructions"`
	MaxSpentToken    string            `json:"max_spent_token,omitempty"` // "" = native
	MaxSpentAmount   string            `json:"max_spent_amount"`
	FillDeadline     uint64            `json:"fill_deadline"`

	// RawOrderData, Sponsor, and Signature are only present for off-chain
	// intents: the encoded StandardOrder, its signer, and their signature
	// over it, needed to open the order on-chain via openFor before it can
	// be filled.
	RawOrderData string `json:"raw_order_data,omitempty"` // hex-encoded
	Sponsor      string `json:"sponsor,omitempty"`
	Signature    string `json:"signature,omitempty"` // hex-encoded
}

// Eip7683 implements Standard for the ERC-7683 cross-chain order format.
// On-chain intents are opened by the user against the origin settler and
// need no preparation; off-chain intents carry a signed order that the
// solver must open itself via openFor before it can be filled.
type Eip7683 struct{}

func NewEip7683() *Eip7683 { return &Eip7683{} }

func (s *Eip7683) Name() string { return "eip7683" }

func (s *Eip7683) ValidateIntent(ctx context.Context, intent types.Intent, solverAddress string) (types.Order, error) {
	var payload Eip7683Payload
	if err := json.Unmarshal(intent.Payload, &payload); err != nil {
		return types.Order{}, fmt.Errorf("%w: eip7683: decode payload: %v", types.ErrValidation, err)
	}
	if payload.OrderID == "" {
		return types.Order{}, fmt.Errorf("%w: eip7683: missing order_id", types.ErrValidation)
	}
	if len(payload.FillInstructions) == 0 {
		return types.Order{}, fmt.Errorf("%w: eip7683: no fill instructions", types.ErrValidation)
	}
	if payload.FillDeadline != 0 && payload.FillDeadline < uint64(time.Now().Unix()) {
		return types.Order{}, fmt.Errorf("%w: eip7683: fill deadline elapsed", types.ErrValidation)
	}

	outputChains := make([]uint64, 0, len(payload.FillInstructions))
	for _, fi := range payload.FillInstructions {
		outputChains = append(outputChains, fi.DestinationChainID)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return types.Order{}, fmt.Errorf("eip7683: re-encode payload: %w", err)
	}

	return types.Order{
		ID:              intent.ID,
		Standard:        s.Name(),
		CreatedAt:       uint64(time.Now().Unix()),
		Status:          types.Created(),
		StandardPayload: raw,
		SolverAddress:   solverAddress,
		QuoteID:         intent.QuoteID,
		InputChainIDs:   []uint64{payload.OriginChainID},
		OutputChainIDs:  outputChains,
	}, nil
}

// GeneratePrepareTransaction returns nil for on-chain intents, which are
// already open on their origin settler. Off-chain intents carry a signed
// StandardOrder that has never touched the chain; this builds the
// openFor(order, sponsor, signature) call that opens it.
func (s *Eip7683) GeneratePrepareTransaction(ctx context.Context, intent types.Intent, order types.Order, params types.ExecutionParams) (*types.Transaction, error) {
	if intent.Source != types.IntentSourceOffChain {
		return nil, nil
	}

	payload, err := s.decode(order)
	if err != nil {
		return nil, err
	}
	if payload.RawOrderData == "" || payload.Sponsor == "" || payload.Signature == "" {
		return nil, fmt.Errorf("%w: eip7683: off-chain order missing raw_order_data/sponsor/signature", types.ErrValidation)
	}

	data, err := packOpenForCalldata(payload.RawOrderData, payload.Sponsor, payload.Signature)
	if err != nil {
		return nil, fmt.Errorf("eip7683: pack openFor calldata: %w", err)
	}

	return &types.Transaction{
		ChainID: payload.OriginChainID,
		To:      payload.OriginSettler,
		Data:    data,
		Value:   "0",
	}, nil
}

func (s *Eip7683) GenerateFillTransaction(ctx context.Context, order types.Order, params types.ExecutionParams) (types.Transaction, error) {
	payload, err := s.decode(order)
	if err != nil {
		return types.Transaction{}, err
	}
	fi := payload.FillInstructions[0]

	// fill(bytes32 orderId, bytes originData, bytes fillerData) selector,
	// mirroring the Hyperlane7683 ABI this standard targets.
	data, err := packFillCalldata(payload.OrderID, fi.OriginData)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("eip7683: pack fill calldata: %w", err)
	}

	value := "0"
	if payload.MaxSpentToken == "" {
		value = payload.MaxSpentAmount
	}

	return types.Transaction{
		ChainID: fi.DestinationChainID,
		To:      fi.DestinationSettler,
		Data:    data,
		Value:   value,
	}, nil
}

func (s *Eip7683) GenerateClaimTransaction(ctx context.Context, order types.Order, proof types.FillProof) (types.Transaction, error) {
	payload, err := s.decode(order)
	if err != nil {
		return types.Transaction{}, err
	}

	data, err := packClaimCalldata(payload.OrderID, proof)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("eip7683: pack claim calldata: %w", err)
	}

	return types.Transaction{
		ChainID: payload.OriginChainID,
		To:      payload.OriginSettler,
		Data:    data,
	}, nil
}

func (s *Eip7683) decode(order types.Order) (Eip7683Payload, error) {
	var payload Eip7683Payload
	if err := json.Unmarshal(order.StandardPayload, &payload); err != nil {
		return Eip7683Payload{}, fmt.Errorf("eip7683: decode order payload %s: %w", types.TruncateID(order.ID), err)
	}
	return payload, nil
}

package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// HTTPOracle is a Settlement implementation backed by a peer attestation
// service reachable over HTTP: one endpoint hands back a FillProof once
// it has observed the fill, another answers whether a given proof is
// claimable yet (e.g. the destination attestation has propagated to the
// origin chain's oracle).
type HTTPOracle struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

func NewHTTPOracle(endpoint string, timeout time.Duration, logger *log.Logger) *HTTPOracle {
	if logger == nil {
		logger = log.New(log.Writer(), "[Settlement] ", log.LstdFlags)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPOracle{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type attestationRequest struct {
	OrderID    string `json:"order_id"`
	FillTxHash string `json:"fill_tx_hash"`
	ChainID    uint64 `json:"chain_id"`
}

type attestationResponse struct {
	Available       bool   `json:"available"`
	BlockNumber     uint64 `json:"block_number"`
	AttestationData []byte `json:"attestation_data"`
	FilledTimestamp uint64 `json:"filled_timestamp"`
	OracleAddress   string `json:"oracle_address"`
}

func (o *HTTPOracle) GetAttestation(ctx context.Context, order types.Order, fillTxHash types.TransactionHash) (types.FillProof, error) {
	req := attestationRequest{OrderID: order.ID, FillTxHash: fillTxHash.Hash, ChainID: fillTxHash.ChainID}
	body, err := json.Marshal(req)
	if err != nil {
		return types.FillProof{}, fmt.Errorf("settlement: marshal attestation request: %w", err)
	}

	resp, err := o.post(ctx, "/attestation", body)
	if err != nil {
		return types.FillProof{}, fmt.Errorf("settlement: fetch attestation for order %s: %w", types.TruncateID(order.ID), err)
	}

	var parsed attestationResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return types.FillProof{}, fmt.Errorf("settlement: decode attestation response: %w", err)
	}
	if !parsed.Available {
		return types.FillProof{}, fmt.Errorf("settlement: attestation not yet available for order %s", types.TruncateID(order.ID))
	}

	return types.FillProof{
		TxHash:          fillTxHash,
		BlockNumber:     parsed.BlockNumber,
		AttestationData: parsed.AttestationData,
		FilledTimestamp: parsed.FilledTimestamp,
		OracleAddress:   parsed.OracleAddress,
	}, nil
}

type canClaimRequest struct {
	OrderID         string `json:"order_id"`
	AttestationData []byte `json:"attestation_data"`
}

type canClaimResponse struct {
	CanClaim bool `json:"can_claim"`
}

// CanClaim never returns an error: a transient oracle failure is treated
// the same as "not yet", and the SettlementMonitor simply polls again.
func (o *HTTPOracle) CanClaim(ctx context.Context, order types.Order, proof types.FillProof) bool {
	req := canClaimRequest{OrderID: order.ID, AttestationData: proof.AttestationData}
	body, err := json.Marshal(req)
	if err != nil {
		o.logger.Printf("order %s: marshal can_claim request: %v", types.TruncateID(order.ID), err)
		return false
	}

	resp, err := o.post(ctx, "/can-claim", body)
	if err != nil {
		o.logger.Printf("order %s: can_claim check failed, will retry: %v", types.TruncateID(order.ID), err)
		return false
	}

	var parsed canClaimResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		o.logger.Printf("order %s: decode can_claim response: %v", types.TruncateID(order.ID), err)
		return false
	}
	return parsed.CanClaim
}

func (o *HTTPOracle) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

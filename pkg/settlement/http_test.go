package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

func TestHTTPOracle_GetAttestation_ReturnsProofWhenAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/attestation" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(attestationResponse{
			Available:       true,
			BlockNumber:     100,
			FilledTimestamp: 123,
			OracleAddress:   "0xoracle",
		})
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, time.Second, nil)
	proof, err := o.GetAttestation(context.Background(), types.Order{ID: "o1"}, types.TransactionHash{Hash: "0xfill", ChainID: 10})
	if err != nil {
		t.Fatalf("get attestation: %v", err)
	}
	if proof.BlockNumber != 100 || proof.OracleAddress != "0xoracle" {
		t.Errorf("got %+v", proof)
	}
}

func TestHTTPOracle_GetAttestation_ErrorsWhenNotYetAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(attestationResponse{Available: false})
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, time.Second, nil)
	if _, err := o.GetAttestation(context.Background(), types.Order{ID: "o1"}, types.TransactionHash{Hash: "0xfill"}); err == nil {
		t.Error("expected an error when the attestation is not yet available")
	}
}

func TestHTTPOracle_GetAttestation_ErrorsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, time.Second, nil)
	if _, err := o.GetAttestation(context.Background(), types.Order{ID: "o1"}, types.TransactionHash{Hash: "0xfill"}); err == nil {
		t.Error("expected an error on a 500 response")
	}
}

func TestHTTPOracle_CanClaim_ReturnsTrueWhenOracleAgrees(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/can-claim" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(canClaimResponse{CanClaim: true})
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, time.Second, nil)
	if !o.CanClaim(context.Background(), types.Order{ID: "o1"}, types.FillProof{}) {
		t.Error("expected CanClaim to be true")
	}
}

func TestHTTPOracle_CanClaim_ReturnsFalseOnTransientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, time.Second, nil)
	if o.CanClaim(context.Background(), types.Order{ID: "o1"}, types.FillProof{}) {
		t.Error("expected CanClaim to be false on a transient oracle failure")
	}
}

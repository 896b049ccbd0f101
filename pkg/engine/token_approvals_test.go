package engine

import (
	"context"
	"errors"
	"testing"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// approvalsTestDelivery is a minimal delivery.Delivery double for
// TokenApprovals tests.
type approvalsTestDelivery struct {
	allowance   string
	submitHash  types.TransactionHash
	submitErr   error
	receipt     types.Receipt
	confirmErr  error
	submitCalls int
}

func (d *approvalsTestDelivery) Submit(ctx context.Context, tx types.Transaction) (types.TransactionHash, error) {
	d.submitCalls++
	return d.submitHash, d.submitErr
}
func (d *approvalsTestDelivery) WaitForConfirmation(ctx context.Context, hash types.TransactionHash, confirmations uint64) (types.Receipt, error) {
	return d.receipt, d.confirmErr
}
func (d *approvalsTestDelivery) GetReceipt(ctx context.Context, hash types.TransactionHash) (types.Receipt, error) {
	return types.Receipt{}, nil
}
func (d *approvalsTestDelivery) GetStatus(ctx context.Context, hash types.TransactionHash) (bool, error) {
	return true, nil
}
func (d *approvalsTestDelivery) GetBalance(ctx context.Context, chainID uint64, address, token string) (string, error) {
	return "0", nil
}
func (d *approvalsTestDelivery) GetGasPrice(ctx context.Context, chainID uint64) (string, error) {
	return "0", nil
}
func (d *approvalsTestDelivery) GetBlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	return 0, nil
}
func (d *approvalsTestDelivery) GetAllowance(ctx context.Context, chainID uint64, owner, spender, token string) (string, error) {
	return d.allowance, nil
}
func (d *approvalsTestDelivery) GetNonce(ctx context.Context, chainID uint64, address string) (uint64, error) {
	return 0, nil
}
func (d *approvalsTestDelivery) EstimateGas(ctx context.Context, tx types.Transaction) (uint64, error) {
	return 0, nil
}

func TestTokenApprovals_Run_SkipsAlreadyMaximallyApprovedTarget(t *testing.T) {
	d := &approvalsTestDelivery{allowance: maxUint256.String()}
	a := NewTokenApprovals(d, "0xsolver", []ApprovalTarget{{ChainID: 1, Token: "0xtoken", Spender: "0xspender"}}, 1, nil)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.submitCalls != 0 {
		t.Errorf("expected no approval submission when already maximally approved, got %d", d.submitCalls)
	}
}

func TestTokenApprovals_Run_SubmitsApprovalWhenBelowMax(t *testing.T) {
	d := &approvalsTestDelivery{
		allowance:  "0",
		submitHash: types.TransactionHash{Hash: "0xapprove"},
		receipt:    types.Receipt{Status: types.TxStatusConfirmed},
	}
	a := NewTokenApprovals(d, "0xsolver", []ApprovalTarget{{ChainID: 1, Token: "0xtoken", Spender: "0xspender"}}, 1, nil)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.submitCalls != 1 {
		t.Errorf("expected one approval submission, got %d", d.submitCalls)
	}
}

func TestTokenApprovals_Run_FailsWhenApprovalReverts(t *testing.T) {
	d := &approvalsTestDelivery{
		allowance:  "0",
		submitHash: types.TransactionHash{Hash: "0xapprove"},
		receipt:    types.Receipt{Status: types.TxStatusFailed},
	}
	a := NewTokenApprovals(d, "0xsolver", []ApprovalTarget{{ChainID: 1, Token: "0xtoken", Spender: "0xspender"}}, 1, nil)

	if err := a.Run(context.Background()); err == nil {
		t.Error("expected an error when the approval transaction reverted")
	}
}

func TestTokenApprovals_Run_FailsWhenSubmitErrors(t *testing.T) {
	d := &approvalsTestDelivery{allowance: "0", submitErr: errors.New("rpc down")}
	a := NewTokenApprovals(d, "0xsolver", []ApprovalTarget{{ChainID: 1, Token: "0xtoken", Spender: "0xspender"}}, 1, nil)

	if err := a.Run(context.Background()); err == nil {
		t.Error("expected an error when submit fails")
	}
}

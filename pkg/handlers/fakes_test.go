package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oif-solver/solver-core/pkg/delivery"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// fakeStore is a minimal in-memory storage.Store, shared by this
// package's tests.
type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string][]byte)} }

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, types.ErrNotFound
	}
	return v, nil
}
func (s *fakeStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}
func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok, nil
}
func (s *fakeStore) CleanupExpired(ctx context.Context) (int, error) { return 0, nil }
func (s *fakeStore) Iterate(ctx context.Context, namespace types.StorageKey, fn func(id string, value []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := string(namespace) + ":"
	for k, v := range s.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if err := fn(strings.TrimPrefix(k, prefix), v); err != nil {
			return err
		}
	}
	return nil
}

// fakeStandard is a minimal orderstd.Standard double whose behavior each
// test configures via its function fields.
type fakeStandard struct {
	name              string
	validateFn        func(ctx context.Context, intent types.Intent, solverAddress string) (types.Order, error)
	preparedTx        *types.Transaction
	prepareErr        error
	fillTx            types.Transaction
	fillErr           error
	claimTx           types.Transaction
	claimErr          error
}

func (f *fakeStandard) Name() string { return f.name }
func (f *fakeStandard) ValidateIntent(ctx context.Context, intent types.Intent, solverAddress string) (types.Order, error) {
	return f.validateFn(ctx, intent, solverAddress)
}
func (f *fakeStandard) GeneratePrepareTransaction(ctx context.Context, intent types.Intent, order types.Order, params types.ExecutionParams) (*types.Transaction, error) {
	return f.preparedTx, f.prepareErr
}
func (f *fakeStandard) GenerateFillTransaction(ctx context.Context, order types.Order, params types.ExecutionParams) (types.Transaction, error) {
	return f.fillTx, f.fillErr
}
func (f *fakeStandard) GenerateClaimTransaction(ctx context.Context, order types.Order, proof types.FillProof) (types.Transaction, error) {
	return f.claimTx, f.claimErr
}

// fakeStrategy is a minimal strategy.Strategy double.
type fakeStrategy struct {
	name     string
	decision types.ExecutionDecision
	err      error
}

func (f *fakeStrategy) Name() string { return f.name }
func (f *fakeStrategy) Decide(ctx context.Context, execCtx types.ExecutionContext) (types.ExecutionDecision, error) {
	return f.decision, f.err
}

// fakeContextBuilder is a minimal ContextBuilder double.
type fakeContextBuilder struct{}

func (fakeContextBuilder) Build(ctx context.Context, order *types.Order, solverAddress string) types.ExecutionContext {
	return types.ExecutionContext{Order: order}
}

// fakeDelivery is a minimal delivery.Delivery double whose Submit
// response/error each test configures.
type fakeDelivery struct {
	submitHash types.TransactionHash
	submitErr  error
	submitted  []types.Transaction
	mu         sync.Mutex
}

func (f *fakeDelivery) Submit(ctx context.Context, tx types.Transaction) (types.TransactionHash, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, tx)
	f.mu.Unlock()
	return f.submitHash, f.submitErr
}
func (f *fakeDelivery) WaitForConfirmation(ctx context.Context, hash types.TransactionHash, confirmations uint64) (types.Receipt, error) {
	return types.Receipt{}, nil
}
func (f *fakeDelivery) GetReceipt(ctx context.Context, hash types.TransactionHash) (types.Receipt, error) {
	return types.Receipt{}, nil
}
func (f *fakeDelivery) GetStatus(ctx context.Context, hash types.TransactionHash) (bool, error) {
	return true, nil
}
func (f *fakeDelivery) GetBalance(ctx context.Context, chainID uint64, address, token string) (string, error) {
	return "0", nil
}
func (f *fakeDelivery) GetGasPrice(ctx context.Context, chainID uint64) (string, error) { return "0", nil }
func (f *fakeDelivery) GetBlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	return 0, nil
}
func (f *fakeDelivery) GetAllowance(ctx context.Context, chainID uint64, owner, spender, token string) (string, error) {
	return "0", nil
}
func (f *fakeDelivery) GetNonce(ctx context.Context, chainID uint64, address string) (uint64, error) {
	return 0, nil
}
func (f *fakeDelivery) EstimateGas(ctx context.Context, tx types.Transaction) (uint64, error) {
	return 0, nil
}

var _ delivery.Delivery = (*fakeDelivery)(nil)

// recordingMonitor records every call made to it instead of spawning a
// real watch.
type recordingMonitor struct {
	mu    sync.Mutex
	calls []struct {
		orderID string
		hash    types.TransactionHash
		kind    types.TransactionType
	}
}

func (m *recordingMonitor) watch(ctx context.Context, orderID string, hash types.TransactionHash, kind types.TransactionType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, struct {
		orderID string
		hash    types.TransactionHash
		kind    types.TransactionType
	}{orderID, hash, kind})
}

func (m *recordingMonitor) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// recordingSettlementSpawner is a SettlementSpawner double.
type recordingSettlementSpawner struct {
	mu    sync.Mutex
	calls int
}

func (s *recordingSettlementSpawner) Watch(ctx context.Context, order types.Order, fillTxHash types.TransactionHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
}

// recordingTxSpawner is a TxSpawner double.
type recordingTxSpawner struct {
	mu    sync.Mutex
	calls int
}

func (s *recordingTxSpawner) Watch(ctx context.Context, orderID string, hash types.TransactionHash, kind types.TransactionType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
}

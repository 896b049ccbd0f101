package handlers

import (
	"context"
	"testing"

	"github.com/oif-solver/solver-core/pkg/eventbus"
	"github.com/oif-solver/solver-core/pkg/orderstd"
	"github.com/oif-solver/solver-core/pkg/registry"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
	"github.com/oif-solver/solver-core/pkg/state"
	"github.com/oif-solver/solver-core/pkg/storage"
)

// recordingMonitorFunc adapts a recordingMonitor to the Monitor func type
// OrderHandler expects.
func recordingMonitorFunc(m *recordingMonitor) Monitor {
	return func(ctx context.Context, orderID string, hash types.TransactionHash, kind types.TransactionType) {
		m.watch(ctx, orderID, hash, kind)
	}
}

func newTestOrderHandler(t *testing.T, standard *fakeStandard, d *fakeDelivery, m *recordingMonitor) (*OrderHandler, *fakeStore, *state.StateMachine) {
	t.Helper()
	store := newFakeStore()
	machine := state.New(store)
	bus := eventbus.New(4, nil)
	standards := registry.New[orderstd.Standard]()
	if err := standards.Register(standard.name, standard); err != nil {
		t.Fatalf("register standard: %v", err)
	}
	h := NewOrderHandler(machine, store, bus, d, standards, recordingMonitorFunc(m), nil)
	return h, store, machine
}

func storeIntent(t *testing.T, store *fakeStore, orderID string, intent types.Intent) {
	t.Helper()
	raw, err := marshalIntent(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	if err := store.Put(context.Background(), storage.Key(types.StorageKeyIntents, orderID), raw, 0); err != nil {
		t.Fatalf("put intent: %v", err)
	}
}

func TestOrderHandler_HandlePreparing_NoPrepareStepSkipsToExecuting(t *testing.T) {
	standard := &fakeStandard{name: "eip7683"} // preparedTx stays nil
	d := &fakeDelivery{}
	m := &recordingMonitor{}
	h, store, machine := newTestOrderHandler(t, standard, d, m)
	ctx := context.Background()

	order := &types.Order{ID: "o1", Standard: "eip7683", Status: types.Created()}
	if err := machine.Store(ctx, order); err != nil {
		t.Fatalf("store order: %v", err)
	}
	storeIntent(t, store, "o1", types.Intent{ID: "o1", Standard: "eip7683"})

	h.HandlePreparing(ctx, "o1", &types.ExecutionParams{GasPrice: "1"})

	got, err := machine.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status.Kind != types.StatusKindPending {
		t.Errorf("got status %s, want Pending", got.Status)
	}
	if len(d.submitted) != 0 {
		t.Errorf("expected no submission when standard has no prepare step, got %d", len(d.submitted))
	}
	if m.count() != 0 {
		t.Errorf("expected no monitor spawn when standard has no prepare step, got %d", m.count())
	}
}

func TestOrderHandler_HandlePreparing_SubmitsAndMonitors(t *testing.T) {
	prepareTx := &types.Transaction{ChainID: 1}
	standard := &fakeStandard{name: "eip7683", preparedTx: prepareTx}
	d := &fakeDelivery{submitHash: types.TransactionHash{Hash: "0xprep"}}
	m := &recordingMonitor{}
	h, store, machine := newTestOrderHandler(t, standard, d, m)
	ctx := context.Background()

	order := &types.Order{ID: "o1", Standard: "eip7683", Status: types.Created()}
	if err := machine.Store(ctx, order); err != nil {
		t.Fatalf("store order: %v", err)
	}
	storeIntent(t, store, "o1", types.Intent{ID: "o1", Standard: "eip7683"})

	h.HandlePreparing(ctx, "o1", &types.ExecutionParams{GasPrice: "1"})

	if len(d.submitted) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(d.submitted))
	}
	got, err := machine.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status.Kind != types.StatusKindPending {
		t.Errorf("got status %s, want Pending", got.Status)
	}
	if got.PrepareTxHash == nil || got.PrepareTxHash.Hash != "0xprep" {
		t.Errorf("expected prepare tx hash recorded, got %+v", got.PrepareTxHash)
	}
	if m.count() != 1 {
		t.Errorf("expected monitor spawned once, got %d", m.count())
	}
}

func TestOrderHandler_HandleExecuting_SubmitsFillTx(t *testing.T) {
	standard := &fakeStandard{name: "eip7683", fillTx: types.Transaction{ChainID: 10}}
	d := &fakeDelivery{submitHash: types.TransactionHash{Hash: "0xfill"}}
	m := &recordingMonitor{}
	h, _, machine := newTestOrderHandler(t, standard, d, m)
	ctx := context.Background()

	order := &types.Order{ID: "o1", Standard: "eip7683", Status: types.Pending()}
	if err := machine.Store(ctx, order); err != nil {
		t.Fatalf("store order: %v", err)
	}

	h.HandleExecuting(ctx, "o1", &types.ExecutionParams{GasPrice: "1"})

	if len(d.submitted) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(d.submitted))
	}
	got, err := machine.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FillTxHash == nil || got.FillTxHash.Hash != "0xfill" {
		t.Errorf("expected fill tx hash recorded, got %+v", got.FillTxHash)
	}
	if m.count() != 1 {
		t.Errorf("expected monitor spawned once, got %d", m.count())
	}
}

package handlers

import (
	"context"
	"testing"

	"github.com/oif-solver/solver-core/pkg/eventbus"
	types "github.com/oif-solver/solver-core/pkg/solvertypes"
	"github.com/oif-solver/solver-core/pkg/state"
)

func newTestTxHandler(t *testing.T, spawner *recordingTxSpawner, settlement *recordingSettlementSpawner) (*TxHandler, *state.StateMachine, *eventbus.EventBus) {
	t.Helper()
	store := newFakeStore()
	machine := state.New(store)
	bus := eventbus.New(4, nil)
	h := NewTxHandler(machine, bus, spawner, settlement, nil)
	return h, machine, bus
}

func TestTxHandler_Monitor_DelegatesToSpawner(t *testing.T) {
	spawner := &recordingTxSpawner{}
	h, _, _ := newTestTxHandler(t, spawner, &recordingSettlementSpawner{})

	h.Monitor(context.Background(), "o1", types.TransactionHash{Hash: "0x1"}, types.TxPrepare)

	if spawner.calls != 1 {
		t.Errorf("got %d spawner calls, want 1", spawner.calls)
	}
}

func TestTxHandler_HandleConfirmed_PrepareMovesToExecutedAndPublishesExecuting(t *testing.T) {
	h, machine, bus := newTestTxHandler(t, &recordingTxSpawner{}, &recordingSettlementSpawner{})
	sub := bus.Subscribe()
	defer sub.Close()
	ctx := context.Background()

	order := &types.Order{ID: "o1", Status: types.Pending(), ExecutionParams: &types.ExecutionParams{GasPrice: "1"}}
	if err := machine.Store(ctx, order); err != nil {
		t.Fatalf("store: %v", err)
	}

	h.HandleConfirmed(ctx, "o1", types.TransactionHash{Hash: "0xprep"}, types.TxPrepare, types.Receipt{})

	got, err := machine.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status.Kind != types.StatusKindExecuted {
		t.Errorf("got status %s, want Executed", got.Status)
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != types.EventOrder || ev.Order.Kind != types.OrderEventExecuting {
			t.Errorf("got %+v, want OrderEventExecuting", ev)
		}
	default:
		t.Error("expected an OrderEventExecuting to be published")
	}
}

func TestTxHandler_HandleConfirmed_FillSpawnsSettlementWatch(t *testing.T) {
	settlement := &recordingSettlementSpawner{}
	h, machine, _ := newTestTxHandler(t, &recordingTxSpawner{}, settlement)
	ctx := context.Background()

	order := &types.Order{ID: "o1", Status: types.Executed()}
	if err := machine.Store(ctx, order); err != nil {
		t.Fatalf("store: %v", err)
	}

	h.HandleConfirmed(ctx, "o1", types.TransactionHash{Hash: "0xfill"}, types.TxFill, types.Receipt{})

	if settlement.calls != 1 {
		t.Errorf("got %d settlement spawns, want 1", settlement.calls)
	}
}

func TestTxHandler_HandleConfirmed_ClaimFinalizesAndPublishesCompleted(t *testing.T) {
	h, machine, bus := newTestTxHandler(t, &recordingTxSpawner{}, &recordingSettlementSpawner{})
	sub := bus.Subscribe()
	defer sub.Close()
	ctx := context.Background()

	order := &types.Order{ID: "o1", Status: types.Settled()}
	if err := machine.Store(ctx, order); err != nil {
		t.Fatalf("store: %v", err)
	}

	h.HandleConfirmed(ctx, "o1", types.TransactionHash{Hash: "0xclaim"}, types.TxClaim, types.Receipt{})

	got, err := machine.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status.Kind != types.StatusKindFinalized {
		t.Errorf("got status %s, want Finalized", got.Status)
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != types.EventSettlement || ev.Settlement.Kind != types.SettlementEventCompleted {
			t.Errorf("got %+v, want SettlementEventCompleted", ev)
		}
	default:
		t.Error("expected a SettlementEventCompleted to be published")
	}
}

func TestTxHandler_HandleFailed_TransitionsToFailed(t *testing.T) {
	h, machine, _ := newTestTxHandler(t, &recordingTxSpawner{}, &recordingSettlementSpawner{})
	ctx := context.Background()

	order := &types.Order{ID: "o1", Status: types.Pending()}
	if err := machine.Store(ctx, order); err != nil {
		t.Fatalf("store: %v", err)
	}

	h.HandleFailed(ctx, "o1", types.TxPrepare)

	got, err := machine.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status.Kind != types.StatusKindFailed || got.Status.Failed != types.TxPrepare {
		t.Errorf("got status %s, want Failed(prepare)", got.Status)
	}
}

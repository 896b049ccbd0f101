package eventbus

import (
	"testing"
	"time"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

func orderEvent(orderID string) types.SolverEvent {
	return types.NewOrderEvent(types.OrderEvent{Kind: types.OrderEventExecuting, OrderID: orderID})
}

func TestEventBus_PublishDeliversToAllSubscribers(t *testing.T) {
	bus := New(4, nil)
	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()
	defer sub1.Close()
	defer sub2.Close()

	bus.Publish(orderEvent("order-1"))

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case ev := <-sub.Events():
			if ev.Order.OrderID != "order-1" {
				t.Errorf("got order id %q, want order-1", ev.Order.OrderID)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestEventBus_PublishWithNoSubscribersIsNoOp(t *testing.T) {
	bus := New(4, nil)
	bus.Publish(orderEvent("order-1")) // must not panic or block
}

func TestEventBus_ClosedSubscriptionStopsReceiving(t *testing.T) {
	bus := New(4, nil)
	sub := bus.Subscribe()
	sub.Close()

	bus.Publish(orderEvent("order-1"))

	if bus.SubscriberCount() != 0 {
		t.Errorf("got %d subscribers, want 0 after close", bus.SubscriberCount())
	}
}

func TestEventBus_FullBacklogDropsOldestRatherThanBlocking(t *testing.T) {
	bus := New(2, nil)
	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(orderEvent("first"))
	bus.Publish(orderEvent("second"))
	bus.Publish(orderEvent("third")) // backlog full: "first" should be dropped

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.Events():
			got = append(got, ev.Order.OrderID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	if got[0] != "second" || got[1] != "third" {
		t.Errorf("got %v, want [second third]", got)
	}
}

func TestEventBus_SubscriberCount(t *testing.T) {
	bus := New(4, nil)
	if bus.SubscriberCount() != 0 {
		t.Fatalf("got %d, want 0", bus.SubscriberCount())
	}
	sub := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Fatalf("got %d, want 1", bus.SubscriberCount())
	}
	sub.Close()
	if bus.SubscriberCount() != 0 {
		t.Fatalf("got %d, want 0 after close", bus.SubscriberCount())
	}
}

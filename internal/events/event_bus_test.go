package events

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T) *EventBus {
	t.Helper()
	bus := NewEventBus(zap.NewNop(), EventBusConfig{NumWorkers: 2, BufferSize: 100})
	t.Cleanup(bus.Stop)
	return bus
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestEventBus_Subscribe_OnlyReceivesItsEventType(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var gotSignal, gotOrder int

	bus.Subscribe(EventTypeSignal, func(e Event) error {
		mu.Lock()
		gotSignal++
		mu.Unlock()
		return nil
	})
	bus.Subscribe(EventTypeOrder, func(e Event) error {
		mu.Lock()
		gotOrder++
		mu.Unlock()
		return nil
	})

	bus.Publish(NewSignalEvent("AAPL", "ENTRY_S2", 2, decimal.NewFromInt(100), decimal.NewFromInt(2), decimal.NewFromInt(100)))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotSignal == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if gotOrder != 0 {
		t.Errorf("gotOrder = %d, want 0 (order subscriber should not see a signal event)", gotOrder)
	}
}

func TestEventBus_SubscribeAll_ReceivesEveryEventType(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var count int
	bus.SubscribeAll(func(e Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	bus.Publish(NewHeartbeatEvent("US"))
	bus.Publish(NewOrderEvent("AAPL", "BUY", "MARKET", 10, decimal.NewFromInt(100), "FILLED"))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	})
}

func TestEventBus_Unsubscribe_StopsDelivery(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var count int
	sub := bus.Subscribe(EventTypeHeartbeat, func(e Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	bus.Publish(NewHeartbeatEvent("US"))
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	bus.Unsubscribe(sub)
	bus.Publish(NewHeartbeatEvent("US"))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("count = %d, want 1 (no further delivery after Unsubscribe)", count)
	}
	if sub.IsActive() {
		t.Errorf("expected subscription to be inactive after Unsubscribe")
	}
}

func TestEventBus_Filter_SkipsNonMatchingEvents(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var seen []string
	bus.Subscribe(EventTypeSignal, func(e Event) error {
		se := e.(*SignalEvent)
		mu.Lock()
		seen = append(seen, se.Symbol)
		mu.Unlock()
		return nil
	}, SubscriptionOptions{
		Async: true,
		Filter: func(e Event) bool {
			se, ok := e.(*SignalEvent)
			return ok && se.Symbol == "AAPL"
		},
	})

	bus.Publish(NewSignalEvent("AAPL", "ENTRY_S2", 2, decimal.NewFromInt(100), decimal.NewFromInt(2), decimal.NewFromInt(100)))
	bus.Publish(NewSignalEvent("MSFT", "ENTRY_S2", 2, decimal.NewFromInt(100), decimal.NewFromInt(2), decimal.NewFromInt(100)))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if seen[0] != "AAPL" {
		t.Errorf("seen = %v, want only AAPL", seen)
	}
}

func TestEventBus_PublishSync_ProcessesBeforeReturning(t *testing.T) {
	bus := newTestBus(t)

	var handled bool
	bus.Subscribe(EventTypeHeartbeat, func(e Event) error {
		handled = true
		return nil
	}, SubscriptionOptions{Async: false})

	bus.PublishSync(NewHeartbeatEvent("US"))

	if !handled {
		t.Errorf("expected the synchronous handler to run before PublishSync returns")
	}
}

func TestEventBus_ExecuteHandler_RecoversFromPanic(t *testing.T) {
	bus := newTestBus(t)

	bus.Subscribe(EventTypeHeartbeat, func(e Event) error {
		panic("boom")
	}, SubscriptionOptions{Async: false})

	bus.PublishSync(NewHeartbeatEvent("US")) // must not crash the test process

	stats := bus.GetStats()
	if stats.ProcessingErrors == 0 {
		t.Errorf("expected ProcessingErrors to be incremented after a handler panic")
	}
}

func TestEventBus_GetStats_TracksPublishedAndProcessed(t *testing.T) {
	bus := newTestBus(t)
	bus.Subscribe(EventTypeHeartbeat, func(e Event) error { return nil })

	bus.Publish(NewHeartbeatEvent("US"))
	waitFor(t, time.Second, func() bool {
		return bus.GetStats().EventsProcessed >= 1
	})

	stats := bus.GetStats()
	if stats.EventsPublished != 1 {
		t.Errorf("EventsPublished = %d, want 1", stats.EventsPublished)
	}
}

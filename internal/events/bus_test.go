package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan ActivityStatusChanged, 1)

	unsub := bus.Subscribe(func(e ActivityStatusChanged) {
		received <- e
	})
	defer unsub()

	event := ActivityStatusChanged{
		ActivityID: "a1",
		OldState:   "ready",
		NewState:   "running",
		Timestamp:  "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.NewState != event.NewState {
		t.Errorf("Expected new_state %s, got %s", event.NewState, got.NewState)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan ComponentError, 1)
	received2 := make(chan ComponentError, 1)

	unsub1 := bus.Subscribe(func(e ComponentError) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e ComponentError) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(ComponentError{Component: "web", Message: "not running"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan ProcessStateChanged, 1)

	unsub := bus.Subscribe(func(e ProcessStateChanged) {
		received <- e
	})

	bus.Publish(ProcessStateChanged{Process: "encoder"})
	<-received

	unsub()

	bus.Publish(ProcessStateChanged{Process: "player"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	statusReceived := make(chan bool, 1)
	processReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ ActivityStatusChanged) {
		statusReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ ProcessStateChanged) {
		processReceived <- true
	})
	defer unsub2()

	bus.Publish(ActivityStatusChanged{NewState: "running"})
	<-statusReceived

	select {
	case <-processReceived:
		t.Fatal("Process subscriber should NOT have received ActivityStatusChanged")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}

	bus.Publish(ProcessStateChanged{NewState: "crashed"})
	<-processReceived

	select {
	case <-statusReceived:
		t.Fatal("Status subscriber should NOT have received ProcessStateChanged")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ ProcessStateChanged) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(ProcessStateChanged{
					Process:   "encoder",
					NewState:  "running",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	// Read all expected events
	for range expected {
		<-receivedCh
	}
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		key   string
	}{
		{"ActivityStatusChanged", ActivityStatusChanged{ActivityID: "a1", NewState: "running"}, "new_state"},
		{"ComponentError", ComponentError{Component: "web", Error: "boom"}, "component"},
		{"ProcessStateChanged", ProcessStateChanged{Process: "encoder"}, "process"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}

			if _, ok := result[tt.key]; !ok {
				t.Errorf("Expected key %s in %s", tt.key, data)
			}
		})
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[ComponentError](bus, ch)
	defer unsub()

	bus.Publish(ComponentError{Component: "web"})

	received := <-ch
	ev, ok := received.(ComponentError)
	if !ok {
		t.Fatalf("Expected ComponentError, got %T", received)
	}
	if ev.Component != "web" {
		t.Errorf("Expected component web, got %s", ev.Component)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[ActivityStatusChanged](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(ActivityStatusChanged{NewState: "ready"})
		done <- true
	}()

	<-done // Should complete without blocking
}

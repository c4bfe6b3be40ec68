package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan TargetSelectedEvent, 1)

	unsub := bus.Subscribe(func(e TargetSelectedEvent) {
		received <- e
	})
	defer unsub()

	event := TargetSelectedEvent{
		TargetID:    "display:0",
		DisplayName: "Display 0",
		Width:       1920,
		Height:      1080,
		Timestamp:   "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.TargetID != event.TargetID {
		t.Errorf("Expected target_id %s, got %s", event.TargetID, got.TargetID)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan RecordingStartedEvent, 1)
	received2 := make(chan RecordingStartedEvent, 1)

	unsub1 := bus.Subscribe(func(e RecordingStartedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e RecordingStartedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(RecordingStartedEvent{TargetID: "test:pattern", Bitrate: 18_000_000})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan TargetClearedEvent, 1)

	unsub := bus.Subscribe(func(e TargetClearedEvent) {
		received <- e
	})

	bus.Publish(TargetClearedEvent{TargetID: "display:0"})
	<-received

	unsub()

	bus.Publish(TargetClearedEvent{TargetID: "display:1"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	startedReceived := make(chan bool, 1)
	finishedReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ RecordingStartedEvent) {
		startedReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ RecordingFinishedEvent) {
		finishedReceived <- true
	})
	defer unsub2()

	bus.Publish(RecordingStartedEvent{TargetID: "display:0"})
	<-startedReceived

	select {
	case <-finishedReceived:
		t.Fatal("Finished subscriber should NOT have received RecordingStartedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}

	bus.Publish(RecordingFinishedEvent{State: "done"})
	<-finishedReceived

	select {
	case <-startedReceived:
		t.Fatal("Started subscriber should NOT have received RecordingFinishedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ PreviewStateChangedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(PreviewStateChangedEvent{
					From:      "created",
					To:        "started",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"TargetSelected", TargetSelectedEvent{TargetID: "display:0"}},
		{"TargetCleared", TargetClearedEvent{TargetID: "display:0"}},
		{"PreviewStateChanged", PreviewStateChangedEvent{To: "closed"}},
		{"RecordingStarted", RecordingStartedEvent{TargetID: "display:0"}},
		{"RecordingFinished", RecordingFinishedEvent{State: "failed"}},
		{"SettingsChanged", SettingsChangedEvent{FrameRate: 30}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case TargetSelectedEvent:
				unsub = bus.Subscribe(func(e TargetSelectedEvent) { received <- e })
			case TargetClearedEvent:
				unsub = bus.Subscribe(func(e TargetClearedEvent) { received <- e })
			case PreviewStateChangedEvent:
				unsub = bus.Subscribe(func(e PreviewStateChangedEvent) { received <- e })
			case RecordingStartedEvent:
				unsub = bus.Subscribe(func(e RecordingStartedEvent) { received <- e })
			case RecordingFinishedEvent:
				unsub = bus.Subscribe(func(e RecordingFinishedEvent) { received <- e })
			case SettingsChangedEvent:
				unsub = bus.Subscribe(func(e SettingsChangedEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_UnknownHandlerIsNoop(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestRecordingFinishedEventOmitsEmptyMessage(t *testing.T) {
	data, err := json.Marshal(RecordingFinishedEvent{State: "done", Samples: 10})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if _, ok := result["message"]; ok {
		t.Errorf("message should be omitted when empty: %s", data)
	}
	if result["state"] != "done" {
		t.Errorf("state = %v, want done", result["state"])
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[RecordingFinishedEvent](bus, ch)
	defer unsub()

	event := RecordingFinishedEvent{TargetID: "display:0", State: "interrupted"}
	bus.Publish(event)

	received := <-ch
	finished, ok := received.(RecordingFinishedEvent)
	if !ok {
		t.Fatalf("Expected RecordingFinishedEvent, got %T", received)
	}
	if finished.State != event.State {
		t.Errorf("Expected state %s, got %s", event.State, finished.State)
	}
}

func TestSubscribeToChannel_NonBlocking(t *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[RecordingStartedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(RecordingStartedEvent{TargetID: "display:0"})
		done <- true
	}()

	<-done // Should complete without blocking

	deadline := time.Now().Add(time.Second)
	for bus.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("dropped event was not counted")
		}
		time.Sleep(time.Millisecond)
	}
}

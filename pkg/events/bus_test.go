package events

import (
	"sync"
	"testing"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func TestBusEmitToAuthor(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	other := &mockSubscriber{}
	bus.Subscribe("Wiz", sub)
	bus.Subscribe("guest", other)

	bus.EmitToAuthor("wiz", Event{Type: EvCompiled, Source: "1+2", Text: "resolved"})

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Source != "1+2" {
		t.Errorf("expected source %q, got %q", "1+2", events[0].Source)
	}
	if events[0].Time.IsZero() {
		t.Error("expected Emit to stamp the event time")
	}
	if len(other.Events()) != 0 {
		t.Error("event leaked to another author")
	}
}

func TestBusBroadcast(t *testing.T) {
	bus := NewBus()
	a, b := &mockSubscriber{}, &mockSubscriber{}
	bus.Subscribe("a", a)
	bus.Subscribe("b", b)

	bus.Emit(Event{Type: EvGrammarReloaded, Text: "grammar lsl reloaded"})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("broadcast reached a=%d b=%d", len(a.Events()), len(b.Events()))
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	bus.Emit(Event{Type: EvScriptSaved, Author: "wiz", Script: "offset"})

	events := global.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 global event, got %d", len(events))
	}
	if events[0].Script != "offset" {
		t.Errorf("expected script %q, got %q", "offset", events[0].Script)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}

	bus.Subscribe("wiz", sub)
	bus.Unsubscribe("WIZ", sub)

	bus.Emit(Event{Type: EvCompiled, Author: "wiz", Text: "should not arrive"})

	if len(sub.Events()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
	if bus.AuthorSubscribers("wiz") != 0 {
		t.Error("expected the author entry to be removed")
	}
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}

	bus.Subscribe("wiz", sub)
	bus.Emit(Event{Type: EvDiagnostic, Author: "wiz", Text: "no delivery"})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

func TestBusCleanup(t *testing.T) {
	bus := NewBus()
	active := &mockSubscriber{}
	closed := &mockSubscriber{isClosed: true}

	bus.Subscribe("wiz", active)
	bus.Subscribe("wiz", closed)
	bus.SubscribeGlobal(&mockSubscriber{isClosed: true})

	bus.Cleanup()

	if bus.AuthorSubscribers("wiz") != 1 {
		t.Errorf("expected 1 active subscriber, got %d", bus.AuthorSubscribers("wiz"))
	}
}

func TestBusConcurrentEmit(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	bus.SubscribeGlobal(sub)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit(Event{Type: EvCompiled, Author: "wiz"})
		}()
	}
	wg.Wait()
	if n := len(sub.Events()); n != 10 {
		t.Errorf("expected 10 events, got %d", n)
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		t    EventType
		want string
	}{
		{EvCompiled, "compiled"},
		{EvDiagnostic, "diagnostic"},
		{EvScriptSaved, "script_saved"},
		{EvGrammarReloaded, "grammar_reloaded"},
		{EventType(999), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}

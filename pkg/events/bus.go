package events

import (
	"strings"
	"sync"
	"time"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-author pub/sub event bus with support for global subscribers.
// The compiler service emits structured events; each subscriber (WebSocket
// connection, logger, etc.) encodes them per-transport.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
	}
}

func authorKey(name string) string { return strings.ToLower(name) }

// Subscribe registers a subscriber for a specific author's events.
func (b *Bus) Subscribe(author string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := authorKey(author)
	b.subscribers[k] = append(b.subscribers[k], sub)
}

// Unsubscribe removes a subscriber for a specific author.
func (b *Bus) Unsubscribe(author string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := authorKey(author)
	subs := b.subscribers[k]
	for i, s := range subs {
		if s == sub {
			b.subscribers[k] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[k]) == 0 {
		delete(b.subscribers, k)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the author in ev.Author and all global subscribers.
// An event with no author is broadcast to every subscriber.
func (b *Bus) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	var subs []Subscriber
	if ev.Author == "" {
		for _, list := range b.subscribers {
			subs = append(subs, list...)
		}
	} else {
		subs = b.subscribers[authorKey(ev.Author)]
	}
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// EmitToAuthor sends an event to a specific author (overriding ev.Author).
func (b *Bus) EmitToAuthor(author string, ev Event) {
	ev.Author = author
	b.Emit(ev)
}

// AuthorSubscribers returns the number of subscribers for an author.
func (b *Bus) AuthorSubscribers(author string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[authorKey(author)])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for author, subs := range b.subscribers {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, author)
		} else {
			b.subscribers[author] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}

// Package broadcast carries storage change notifications between clients that
// share one profile, the way a browser fires the storage event in every other
// tab. Receivers filter out events from their own origin.
package broadcast

import (
	"context"
	"sync"
)

// Event announces that a logical storage key changed.
type Event struct {
	Key     string `json:"key"`
	Origin  string `json:"origin"`
	Removed bool   `json:"removed,omitempty"`
}

// Bus delivers events to every subscriber, including those of the publishing
// origin.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(handler func(Event)) (unsubscribe func())
	Close() error
}

// LocalBus is an in-process Bus. Publish invokes handlers synchronously on
// the caller's goroutine.
type LocalBus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(Event)
	closed   bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]func(Event))}
}

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	for _, h := range b.snapshot() {
		h(ev)
	}
	return nil
}

func (b *LocalBus) Subscribe(handler func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.next
	b.next++
	b.handlers[id] = handler

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[int]func(Event))
	return nil
}

func (b *LocalBus) snapshot() []func(Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := make([]func(Event), 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	return hs
}

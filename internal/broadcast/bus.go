// Package broadcast propagates record-store mutations to every active view
// of the application. It replaces the platform-global event target the
// browser offers with an explicit bus that is constructed at app start,
// injected into consumers, and torn down on unmount.
package broadcast

import (
	"sync"

	"fieldlog/pkg/domain"
)

// Bus fans out two signals per mutation: a storage-level notice with no
// payload, and a typed application-level change event. Delivery is
// synchronous and in subscription order; handlers must not mutate shared
// state without re-reading the durable copy first.
type Bus struct {
	mu      sync.Mutex
	closed  bool
	nextID  int
	notices map[int]func(domain.StorageNotice)
	changes map[int]func(domain.ChangeEvent)
}

// New constructs an empty bus.
func New() *Bus {
	return &Bus{
		notices: make(map[int]func(domain.StorageNotice)),
		changes: make(map[int]func(domain.ChangeEvent)),
	}
}

// SubscribeNotices registers a storage-notice handler and returns a cancel
// function. Cancel is idempotent.
func (b *Bus) SubscribeNotices(fn func(domain.StorageNotice)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.notices[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.notices, id)
	}
}

// SubscribeChanges registers a change-event handler and returns a cancel
// function.
func (b *Bus) SubscribeChanges(fn func(domain.ChangeEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.changes[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.changes, id)
	}
}

// PublishNotice delivers a storage notice to every subscriber, including
// the context that caused it; consumers reconcile idempotently.
func (b *Bus) PublishNotice(n domain.StorageNotice) {
	for _, fn := range b.noticeHandlers() {
		fn(n)
	}
}

// PublishChange delivers a typed change event to every subscriber.
func (b *Bus) PublishChange(ev domain.ChangeEvent) {
	for _, fn := range b.changeHandlers() {
		fn(ev)
	}
}

// Close drops all subscriptions; subsequent publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.notices = map[int]func(domain.StorageNotice){}
	b.changes = map[int]func(domain.ChangeEvent){}
}

func (b *Bus) noticeHandlers() []func(domain.StorageNotice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	out := make([]func(domain.StorageNotice), 0, len(b.notices))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.notices[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (b *Bus) changeHandlers() []func(domain.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	out := make([]func(domain.ChangeEvent), 0, len(b.changes))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.changes[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// Package notify carries cross-connection change events. A connection
// never touches another connection's state directly; it publishes an Event
// and every subscriber reacts on its own terms.
package notify

import (
	"sync"
)

// Kind is the type of change.
type Kind uint8

const (
	Created Kind = iota + 1
	Removed
	Renamed
	Modified
	AttributesChanged
	DirCreated
	DirRemoved
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	case Modified:
		return "modified"
	case AttributesChanged:
		return "attributes_changed"
	case DirCreated:
		return "dir_created"
	case DirRemoved:
		return "dir_removed"
	default:
		return "unknown"
	}
}

// External is the Origin of events observed on the host filesystem.
const External uint64 = 0

// Event describes one change inside a share.
type Event struct {
	Kind  Kind
	Share string
	Path  string

	// OldPath is set for Renamed.
	OldPath string

	// Origin is the connection that caused the change, or External.
	Origin uint64
}

// Bus fans events out to subscribers synchronously, in publish order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
// fn must not block and must not call Subscribe or the returned cancel.
func (b *Bus) Subscribe(fn func(Event)) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber. A nil Bus drops the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

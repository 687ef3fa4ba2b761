package notify

import (
	"log/slog"
	"sync"
)

const (
	EventDispenseComplete = "dispense-complete"
	EventDispenseError    = "dispense-error"
)

type Event struct {
	Type    string
	Payload any
}

// Broadcaster fans hardware events out to connected web clients.
// Delivery is at most once per subscriber: a slow subscriber loses the
// event rather than blocking the publisher, and a late subscriber never
// sees events published before it joined.
type Broadcaster struct {
	mu     sync.Mutex
	nextId int
	subs   map[int]chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers an observer. The returned cancel func must be
// called when the observer leaves; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextId
	b.nextId++

	ch := make(chan Event, 8)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}

	return ch, cancel
}

func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping event for slow subscriber",
				slog.String("event", ev.Type),
				slog.Int("subscriber", id),
			)
		}
	}
}

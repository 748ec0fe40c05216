package app

import (
	"fmt"
	"sync"

	"github.com/dkeye/confclient/internal/core"
	"github.com/rs/zerolog/log"
)

// Bus fans session events out to subscribers. Publish never blocks: a
// subscriber that cannot keep up loses the event and the drop is logged.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan core.Event
	next   int
	buf    int
	closed bool
}

func NewBus(buf int) *Bus {
	if buf <= 0 {
		buf = 32
	}
	return &Bus{subs: make(map[int]chan core.Event), buf: buf}
}

// Subscribe returns the event channel and a cancel func. The channel is
// closed on cancel or when the bus shuts down.
func (b *Bus) Subscribe() (<-chan core.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan core.Event)
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	ch := make(chan core.Event, b.buf)
	b.subs[id] = ch
	return ch, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Bus) Publish(ev core.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("module", "app.bus").Int("sub", id).Str("event", fmt.Sprintf("%T", ev)).Msg("slow subscriber, event dropped")
		}
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

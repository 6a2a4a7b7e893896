// Package events carries session status to observers and keeps a local
// journal of session lifecycle events.
package events

import (
	"sync"

	"github.com/treykane/termshare/internal/model"
)

// Publisher is the fire-and-forget notification sink the supervisor uses.
type Publisher interface {
	Publish(topic string, s model.StatusSnapshot) error
}

// Bus fans snapshots out to subscribers in memory. A slow subscriber never
// blocks Publish: when its buffer is full the oldest pending snapshot is
// dropped in favour of the newest, so every subscriber converges on the
// current status.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
	last   map[string]model.StatusSnapshot
}

type subscription struct {
	topic string
	ch    chan model.StatusSnapshot
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription), last: make(map[string]model.StatusSnapshot)}
}

// Publish delivers s to every subscriber of topic.
func (b *Bus) Publish(topic string, s model.StatusSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last[topic] = s
	for _, sub := range b.subs {
		if sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- s:
			continue
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- s:
		default:
		}
	}
	return nil
}

// Subscribe registers for topic. The returned cancel func unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(topic string, buffer int) (<-chan model.StatusSnapshot, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &subscription{topic: topic, ch: make(chan model.StatusSnapshot, buffer)}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Last returns the most recent snapshot published on topic.
func (b *Bus) Last(topic string) (model.StatusSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.last[topic]
	return s, ok
}

// Subscribers reports the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

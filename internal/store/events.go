package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/inkify/engine/internal/logger"
	"go.uber.org/zap"
)

// subscriber buffer size; events beyond a stalled consumer's buffer are
// dropped and counted, matching the at-least-once (not exactly-once)
// delivery contract
const subscriberBuffer = 256

type subscriber struct {
	collection string
	ch         chan ChangeEvent
}

// Broadcaster fans change events out to in-process subscribers
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	dropped atomic.Int64
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers interest in a collection. An empty collection
// receives all events. The returned cancel func must be called to
// release the subscription.
func (b *Broadcaster) Subscribe(collection string) (<-chan ChangeEvent, func()) {
	sub := &subscriber{
		collection: collection,
		ch:         make(chan ChangeEvent, subscriberBuffer),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers an event to every matching subscriber without blocking
func (b *Broadcaster) Publish(event ChangeEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.collection != "" && sub.collection != event.Collection {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
			logger.Log.Warn("change event dropped, subscriber buffer full",
				zap.String("collection", event.Collection),
				zap.String("doc_id", event.DocID),
			)
		}
	}
}

// Dropped reports how many events stalled subscribers have missed
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity used when
// Subscribe is called with a non-positive buffer size.
const DefaultSubscriberBuffer = 64

// Subscriber is one registered viewer connection. Events arrive on Events()
// in publish order; the channel is closed when the subscriber is removed.
type Subscriber struct {
	ch     chan Event
	closed bool
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Broadcaster fans committed change events out to every registered
// subscriber.
//
// Publish is serialized by a single mutex, so when callers publish each
// commit's events before releasing their commit section, every subscriber
// observes events in commit order. Delivery into a subscriber's buffered
// channel never blocks the publisher: a subscriber whose buffer is full is
// treated as failed and pruned from the registry, exactly like one whose
// connection write failed. A viewer that gets pruned reconnects and
// re-reads current state, so dropping it is safe.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
	log  zerolog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[*Subscriber]struct{}),
		log:  log,
	}
}

// Subscribe registers a new subscriber with the given channel buffer.
func (b *Broadcaster) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	sub := &Subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub] = struct{}{}
	b.log.Debug().Int("subscribers", len(b.subs)).Msg("viewer subscribed")
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call more
// than once.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *Broadcaster) removeLocked(sub *Subscriber) {
	if sub.closed {
		return
	}
	delete(b.subs, sub)
	sub.closed = true
	close(sub.ch)
}

// Publish delivers the events, in order, to every subscriber. Subscribers
// that cannot keep up are pruned; the remaining subscribers are unaffected.
func (b *Broadcaster) Publish(evs ...Event) {
	if len(evs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	// Snapshot so pruning during iteration stays well defined.
	subs := make([]*Subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	for _, sub := range subs {
		for _, ev := range evs {
			select {
			case sub.ch <- ev:
			default:
				b.log.Warn().Str("event", string(ev.Type)).Msg("slow viewer pruned")
				b.removeLocked(sub)
			}
			if sub.closed {
				break
			}
		}
	}
}

// SubscriberCount reports the number of registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close removes every subscriber, closing their channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		b.removeLocked(sub)
	}
}

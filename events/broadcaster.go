// Package events is the in-process publish/subscribe point between the
// write paths and everything that relays their events.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topics carried by the broadcaster.
const (
	TopicCustomer     = "customer"
	TopicOrder        = "order"
	TopicOrderProduct = "orderProduct"
	TopicProduct      = "product"
)

// Event is one published payload. Payload is serialised by each
// subscriber; json.RawMessage passes through untouched.
type Event struct {
	Topic      string
	Payload    interface{}
	OccurredAt time.Time
}

type Handler func(Event)

type subscription struct {
	handler Handler
	topics  map[string]bool
}

func (s subscription) wants(topic string) bool {
	return len(s.topics) == 0 || s.topics[topic]
}

// Broadcaster queues events and hands them to subscribers from a single
// dispatcher goroutine, so every subscriber sees publish order.
type Broadcaster struct {
	queue  chan Event
	done   chan struct{}
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[uint64]subscription
	nextID uint64

	stopOnce sync.Once
}

func NewBroadcaster(buffer int, logger *zap.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 256
	}
	return &Broadcaster{
		queue:  make(chan Event, buffer),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("component", "broadcaster")),
		subs:   make(map[uint64]subscription),
	}
}

// Publish enqueues an event. It blocks while the queue is full and drops
// the event once the dispatcher has stopped.
func (b *Broadcaster) Publish(topic string, payload interface{}) {
	evt := Event{Topic: topic, Payload: payload, OccurredAt: time.Now().UTC()}
	select {
	case <-b.done:
		b.logger.Debug("broadcaster stopped, event dropped", zap.String("topic", topic))
		return
	default:
	}
	select {
	case b.queue <- evt:
	case <-b.done:
		b.logger.Debug("broadcaster stopped, event dropped", zap.String("topic", topic))
	}
}

// Subscribe registers h for topics, or for every topic when none are given.
// The returned func removes the subscription.
func (b *Broadcaster) Subscribe(h Handler, topics ...string) func() {
	sub := subscription{handler: h}
	if len(topics) > 0 {
		sub.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Run dispatches until ctx is cancelled. Events still queued at that
// point are delivered before Run returns.
func (b *Broadcaster) Run(ctx context.Context) {
	defer b.stopOnce.Do(func() { close(b.done) })

	for {
		select {
		case evt := <-b.queue:
			b.dispatch(evt)
		case <-ctx.Done():
			for {
				select {
				case evt := <-b.queue:
					b.dispatch(evt)
				default:
					return
				}
			}
		}
	}
}

func (b *Broadcaster) dispatch(evt Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.wants(evt.Topic) {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(h, evt)
	}
}

func (b *Broadcaster) safeCall(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", evt.Topic),
				zap.Any("panic", r),
			)
		}
	}()
	h(evt)
}

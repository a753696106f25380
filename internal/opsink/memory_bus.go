// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package opsink

import (
	"context"
	"sync"

	"github.com/ManuGH/audiocenter/internal/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// MemoryBus is an in-process pub/sub. Delivery is best effort: a full
// subscriber loses the event instead of blocking the publisher.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	buffer int
}

// NewMemoryBus returns a bus with the given per-subscriber buffer.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &MemoryBus{subs: make(map[string][]*subscription), buffer: buffer}
}

// Publish delivers ev to subscribers of ev.Topic and of TopicAll.
func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	metrics.BusPublishedTotal.WithLabelValues(ev.Topic).Inc()
	for _, topic := range [2]string{ev.Topic, TopicAll} {
		for _, s := range b.subs[topic] {
			select {
			case s.ch <- ev:
			default:
				metrics.IncBusDrop(ev.Topic)
			}
		}
	}
	return nil
}

// Subscribe registers a subscriber for topic (or TopicAll). The subscription
// ends on Close or when ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	s := &subscription{bus: b, topic: topic, ch: make(chan Event, b.buffer)}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	if ctx.Done() != nil {
		s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })
	}
	return s, nil
}

// Subscribers returns the subscriber count of a topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *MemoryBus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lst := b.subs[s.topic]
	out := lst[:0]
	for _, c := range lst {
		if c != s {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(b.subs, s.topic)
	} else {
		b.subs[s.topic] = out
	}
	// Publish sends under the read lock, so closing here is safe.
	close(s.ch)
}

type subscription struct {
	bus   *MemoryBus
	topic string
	ch    chan Event
	once  sync.Once
	stop  func() bool
}

func (s *subscription) C() <-chan Event { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.bus.remove(s)
	})
	return nil
}

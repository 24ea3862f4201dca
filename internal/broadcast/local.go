// Package broadcast provides the named channels connecting the UI
// control-plane to stations: an in-process implementation for a single
// process and a NATS-backed one when workers span processes.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/ports"
)

type localSubscription struct {
	bus     *Local
	channel string
	id      int
}

func (s *localSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if subs, ok := s.bus.subs[s.channel]; ok {
		if ch, ok := subs[s.id]; ok {
			close(ch)
			delete(subs, s.id)
		}
		if len(subs) == 0 {
			delete(s.bus.subs, s.channel)
		}
	}
	return nil
}

// Local is the in-process broadcaster. Delivery is best-effort: handlers run
// on a per-subscriber goroutine feeding from a bounded queue, so one slow
// subscriber never stalls a sender.
type Local struct {
	log *zap.Logger

	mu     sync.Mutex
	subs   map[string]map[int]chan []byte
	nextID int
	closed bool
}

// NewLocal builds an empty bus.
func NewLocal(log *zap.Logger) *Local {
	return &Local{
		log:  log,
		subs: make(map[string]map[int]chan []byte),
	}
}

// Publish delivers data to every current subscriber of channel. Subscribers
// with a full queue are skipped.
func (b *Local) Publish(channel string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs[channel] {
		select {
		case ch <- data:
		default:
			b.log.Warn("broadcast subscriber queue full, message dropped",
				zap.String("channel", channel), zap.Int("subscriber", id))
		}
	}
	return nil
}

// Subscribe registers a handler for channel. Messages from one sender arrive
// in publish order.
func (b *Local) Subscribe(channel string, handler func(data []byte)) (ports.Subscription, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan []byte)
	}
	b.nextID++
	id := b.nextID
	b.subs[channel][id] = ch
	b.mu.Unlock()

	sub := &localSubscription{bus: b, channel: channel, id: id}
	go func() {
		for data := range ch {
			handler(data)
		}
	}()
	return sub, nil
}

// Close drops all subscriptions.
func (b *Local) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, channel)
	}
	return nil
}

var _ ports.Broadcaster = (*Local)(nil)

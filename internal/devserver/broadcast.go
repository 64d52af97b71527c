package devserver

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/agent-racer/hookwatch/internal/notify"
)

// Subscriber is one stream client's queue of encoded notifications.
type Subscriber struct {
	send chan []byte
}

func (s *Subscriber) close() {
	close(s.send)
}

// Broadcaster fans notifications out to every stream subscriber. Subscribers
// that cannot keep up are dropped rather than blocking the publisher.
type Broadcaster struct {
	log zerolog.Logger

	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
}

func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		log:         log,
		subscribers: make(map[*Subscriber]bool),
	}
}

func (b *Broadcaster) Subscribe() *Subscriber {
	s := &Subscriber{send: make(chan []byte, 64)}
	b.mu.Lock()
	b.subscribers[s] = true
	b.mu.Unlock()
	return s
}

func (b *Broadcaster) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	if _, ok := b.subscribers[s]; ok {
		delete(b.subscribers, s)
		s.close()
	}
	b.mu.Unlock()
}

// Publish encodes n and queues it for every subscriber.
func (b *Broadcaster) Publish(n notify.Notification) {
	data, err := notify.Encode(n)
	if err != nil {
		b.log.Error().Err(err).Msg("encode notification")
		return
	}

	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.send <- data:
		default:
			b.log.Warn().Msg("stream subscriber too slow, disconnecting")
			b.Unsubscribe(s)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subscribers {
		delete(b.subscribers, s)
		s.close()
	}
}

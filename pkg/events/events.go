package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labfleet/labfleet/pkg/metrics"
)

// Envelope is the wire-format object pushed to stream subscribers
type Envelope struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	Source string      `json:"source"`
	Time   time.Time   `json:"time"`
	Data   interface{} `json:"data,omitempty"`
}

// NewEnvelope builds an envelope with a fresh id
func NewEnvelope(eventType, source string, at time.Time, data interface{}) *Envelope {
	if at.IsZero() {
		at = time.Now()
	}
	return &Envelope{
		ID:     uuid.New().String(),
		Type:   eventType,
		Source: source,
		Time:   at,
		Data:   data,
	}
}

// DefaultQueueSize bounds each subscriber's queue
const DefaultQueueSize = 1024

// Subscriber receives envelopes from the broker. When the queue overflows
// the oldest entries are dropped and the subscriber is marked lagged; the
// publisher is never blocked.
type Subscriber struct {
	C chan *Envelope

	mu      sync.Mutex
	dropped int64
}

// Dropped returns how many envelopes this subscriber lost to backpressure
func (s *Subscriber) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Lagged reports whether the subscriber has ever overflowed
func (s *Subscriber) Lagged() bool {
	return s.Dropped() > 0
}

func (s *Subscriber) push(e *Envelope) {
	select {
	case s.C <- e:
		return
	default:
	}
	// queue full: evict the oldest entry and retry once
	select {
	case <-s.C:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		metrics.EventsDroppedTotal.Inc()
	default:
	}
	select {
	case s.C <- e:
	default:
		// lost the retry race; the new envelope is dropped too
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		metrics.EventsDroppedTotal.Inc()
	}
}

// Broker manages envelope subscriptions and distribution
type Broker struct {
	queueSize   int
	subscribers map[*Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Envelope
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewBroker creates a new event broker; queueSize <= 0 uses the default
func NewBroker(queueSize int) *Broker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broker{
		queueSize:   queueSize,
		subscribers: make(map[*Subscriber]bool),
		eventCh:     make(chan *Envelope, 256),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker and closes all subscriber channels
func (b *Broker) Stop() {
	close(b.stopCh)
	<-b.doneCh

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		close(sub.C)
		delete(b.subscribers, sub)
	}
}

// Subscribe registers a new subscriber
func (b *Broker) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{C: make(chan *Envelope, b.queueSize)}
	b.subscribers[sub] = true
	metrics.EventSubscribers.Set(float64(len(b.subscribers)))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub.C)
	}
	metrics.EventSubscribers.Set(float64(len(b.subscribers)))
}

// Publish enqueues an envelope for distribution; it never blocks longer than
// the internal queue takes to accept
func (b *Broker) Publish(e *Envelope) {
	select {
	case b.eventCh <- e:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	defer close(b.doneCh)
	for {
		select {
		case e := <-b.eventCh:
			b.broadcast(e)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(e *Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		sub.push(e)
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

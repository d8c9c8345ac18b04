package notify

import (
	"context"
	"errors"

	"payrank-backend/internal/metrics"

	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("notification hub is closed")

// Message is an event as seen by a subscriber.
type Message struct {
	Topic string
	Event Event
}

// Subscription receives messages for its topics until it is removed or the hub stops.
type Subscription struct {
	C      <-chan Message
	ch     chan Message
	topics map[string]struct{}
}

func (s *Subscription) wants(topic string) bool {
	_, ok := s.topics[topic]
	return ok
}

// Hub is an in-process Publisher feeding live stream connections.
type Hub struct {
	subs       map[*Subscription]struct{}
	addChan    chan *Subscription
	removeChan chan *Subscription
	pubChan    chan Message
	stopChan   chan struct{}
	buffer     int
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewHub(log *zap.Logger, m *metrics.Metrics, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:       make(map[*Subscription]struct{}),
		addChan:    make(chan *Subscription),
		removeChan: make(chan *Subscription),
		pubChan:    make(chan Message, 64),
		stopChan:   make(chan struct{}),
		buffer:     buffer,
		log:        log,
		metrics:    m,
	}
}

// Run owns the subscriber set until ctx is done. Every subscription channel is closed on return.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.stopChan)
		for s := range h.subs {
			close(s.ch)
		}
		h.metrics.StreamSubscribers.Set(0)
	}()

	for {
		select {
		case s := <-h.addChan:
			h.subs[s] = struct{}{}
			h.metrics.StreamSubscribers.Set(float64(len(h.subs)))

		case s := <-h.removeChan:
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.ch)
				h.metrics.StreamSubscribers.Set(float64(len(h.subs)))
			}

		case msg := <-h.pubChan:
			h.deliver(msg)

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) deliver(msg Message) {
	for s := range h.subs {
		if !s.wants(msg.Topic) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			// Slow consumer; live updates are best effort.
			h.metrics.NotificationsDropped.Inc()
			h.log.Debug("dropped event for slow subscriber", zap.String("topic", msg.Topic), zap.String("type", msg.Event.Type))
		}
	}
}

// Subscribe registers a subscription for topics.
func (h *Hub) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	ch := make(chan Message, h.buffer)
	s := &Subscription{C: ch, ch: ch, topics: make(map[string]struct{}, len(topics))}
	for _, t := range topics {
		s.topics[t] = struct{}{}
	}

	select {
	case h.addChan <- s:
		return s, nil
	case <-h.stopChan:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes s and closes its channel. Safe to call after the hub stopped.
func (h *Hub) Unsubscribe(s *Subscription) {
	select {
	case h.removeChan <- s:
	case <-h.stopChan:
	}
}

func (h *Hub) Publish(ctx context.Context, topic string, ev Event) error {
	select {
	case h.pubChan <- Message{Topic: topic, Event: ev}:
		return nil
	case <-h.stopChan:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

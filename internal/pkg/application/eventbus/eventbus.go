// Package eventbus is the process-wide publish/subscribe core described in
// spec §4.A. It is deliberately small and dependency-free: the teacher's
// application/webevents.WebEvents wraps go-sse to fan telemetry out to HTTP
// clients, but go-sse gives no control over per-subscriber backpressure, so
// the bounded-queue / drop-oldest semantics required here are hand-rolled
// over buffered channels and bridged to go-sse separately (see webbridge.go).
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Topic is drawn from the closed set named in spec §4.A.
type Topic string

const (
	TopicTelemetryUpdated    Topic = "telemetry.updated"
	TopicDeviceStateChanged  Topic = "device.state.changed"
	TopicRuleTriggered       Topic = "rule.triggered"
	TopicNotificationCreated Topic = "notification.created"
	TopicNotificationUpdated Topic = "notification.updated"
)

var allTopics = []Topic{
	TopicTelemetryUpdated,
	TopicDeviceStateChanged,
	TopicRuleTriggered,
	TopicNotificationCreated,
	TopicNotificationUpdated,
}

// subscriberQueueDepth bounds each subscriber's backlog; §5 caps the publish
// blocking window at 50ms before the oldest queued message is dropped.
const subscriberQueueDepth = 64

const publishBlockWindow = 50 * time.Millisecond

// Message is the envelope delivered to subscribers. Payload is one of the
// types.BusMessage implementations for the matching Topic.
type Message struct {
	Topic     Topic
	Payload   any
	Published time.Time
}

// Subscription is released deterministically by Close: once Close returns,
// no further sends will be attempted on C and the bus has forgotten this
// subscriber.
type Subscription struct {
	C      <-chan Message
	bus    *Bus
	topic  Topic
	id     uint64
	closed chan struct{}
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s.topic, s.id)
		close(s.closed)
	})
}

type subscriber struct {
	id   uint64
	ch   chan Message
	drop uint64 // count of messages dropped for this subscriber, for the logged counter
}

// Bus is safe for concurrent use. Publish never blocks the caller beyond
// publishBlockWindow per slow subscriber.
type Bus struct {
	log zerolog.Logger

	mu    sync.Mutex
	subs  map[Topic]map[uint64]*subscriber
	nextID uint64
}

func New(log zerolog.Logger) *Bus {
	b := &Bus{
		log:  log.With().Str("component", "eventbus").Logger(),
		subs: make(map[Topic]map[uint64]*subscriber, len(allTopics)),
	}
	for _, t := range allTopics {
		b.subs[t] = make(map[uint64]*subscriber)
	}
	return b
}

// Subscribe returns a channel that receives every message published on
// topic from this point forward, in publish order.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscriber{id: id, ch: make(chan Message, subscriberQueueDepth)}
	b.subs[topic][id] = sub

	return &Subscription{
		C:      sub.ch,
		bus:    b,
		topic:  topic,
		id:     id,
		closed: make(chan struct{}),
	}
}

func (b *Bus) unsubscribe(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[topic][id]
	if !ok {
		return
	}
	delete(b.subs[topic], id)
	close(sub.ch)
}

// Publish is non-blocking from the caller's perspective beyond a single
// publishBlockWindow per subscriber: a subscriber that cannot keep up has
// its oldest queued message dropped to make room, and the drop is counted.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload any) {
	msg := Message{Topic: topic, Payload: payload, Published: time.Now().UTC()}

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs[topic]))
	for _, s := range b.subs[topic] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, msg)
	}
}

func (b *Bus) deliver(s *subscriber, msg Message) {
	select {
	case s.ch <- msg:
		return
	default:
	}

	timer := time.NewTimer(publishBlockWindow)
	defer timer.Stop()

	select {
	case s.ch <- msg:
		return
	case <-timer.C:
	}

	// Still full: drop the oldest queued message and retry once.
	select {
	case <-s.ch:
		b.mu.Lock()
		s.drop++
		dropped := s.drop
		b.mu.Unlock()
		b.log.Warn().Str("topic", string(msg.Topic)).Uint64("totalDropped", dropped).Msg("subscriber queue full, dropped oldest message")
	default:
	}

	select {
	case s.ch <- msg:
	default:
		// Another publisher raced us and refilled the queue; give up on
		// this subscriber for this message rather than block further.
	}
}

package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ritzau/kube-playground/pkg/logging"
)

// subscriberBuffer is the channel capacity of one subscription. A slower
// subscriber loses events rather than stalling the session.
const subscriberBuffer = 100

// topic is the state of one configured topic.
type topic struct {
	config  TopicConfig
	version int
	recent  []Event
	subs    map[*sseSubscription]struct{}
}

// keep appends ev to the replay buffer, trimmed to the configured size.
func (t *topic) keep(ev Event) {
	if t.config.BufferSize <= 0 {
		return
	}
	t.recent = append(t.recent, ev)
	if over := len(t.recent) - t.config.BufferSize; over > 0 {
		t.recent = t.recent[over:]
	}
}

// replay returns the events a new subscriber is sent first.
func (t *topic) replay() []Event {
	if len(t.recent) == 0 {
		return nil
	}
	if !t.config.ReplayAll {
		return []Event{t.recent[len(t.recent)-1]}
	}
	return append([]Event(nil), t.recent...)
}

// SSEPublisher is an in-process Publisher whose events are framed for
// Server-Sent Events by WriteSSE.
type SSEPublisher struct {
	mu     sync.RWMutex
	topics map[string]*topic
	closed bool
}

// NewSSEPublisher returns a publisher configured with SessionTopics.
func NewSSEPublisher() *SSEPublisher {
	p := &SSEPublisher{topics: make(map[string]*topic)}
	for name, cfg := range SessionTopics() {
		p.ConfigureTopic(name, cfg)
	}
	return p
}

// ConfigureTopic adds topic name or changes its replay buffering.
func (p *SSEPublisher) ConfigureTopic(name string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		t.config = config
		return
	}
	p.topics[name] = &topic{config: config, subs: make(map[*sseSubscription]struct{})}
}

// Subscribe opens a subscription to a configured topic and queues the
// events its configuration replays.
func (p *SSEPublisher) Subscribe(ctx context.Context, name string) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	t, ok := p.topics[name]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w %q", ErrUnknownTopic, name)
	}

	sub := &sseSubscription{
		topic:     name,
		events:    make(chan Event, subscriberBuffer),
		publisher: p,
	}
	// Replaying under the lock keeps replayed events ahead of new ones.
	replay := t.replay()
	for _, ev := range replay {
		select {
		case sub.events <- ev:
		default:
			logging.Warn("Could not replay event to new subscriber", "topic", name, "version", ev.Version)
		}
	}
	t.subs[sub] = struct{}{}
	p.mu.Unlock()

	if len(replay) > 0 {
		logging.Debug("Replayed events to new subscriber", "topic", name, "count", len(replay))
	}

	sub.setStop(context.AfterFunc(ctx, func() { sub.Close() }))
	return sub, nil
}

// Publish sends an event to every subscriber of a configured topic.
func (p *SSEPublisher) Publish(name string, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	t, ok := p.topics[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTopic, name)
	}

	t.version++
	ev := Event{Topic: name, Type: eventType, Data: payload, Version: t.version}
	t.keep(ev)

	for sub := range t.subs {
		select {
		case sub.events <- ev:
		default:
			logging.Warn("Subscriber is behind, dropping event", "topic", name, "type", eventType, "version", ev.Version)
		}
	}
	return nil
}

// Close closes every subscription. Later calls to Publish and Subscribe
// return ErrClosed.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, t := range p.topics {
		for sub := range t.subs {
			sub.closeEvents()
		}
		t.subs = make(map[*sseSubscription]struct{})
	}
	return nil
}

// Subscribers returns the number of open subscriptions to topic name.
func (p *SSEPublisher) Subscribers(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.topics[name]; ok {
		return len(t.subs)
	}
	return 0
}

func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[sub.topic]; ok {
		delete(t.subs, sub)
	}
}

type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher
	closeOnce sync.Once

	mu     sync.Mutex
	stop   func() bool
	closed bool
}

func (s *sseSubscription) setStop(stop func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		stop()
		return
	}
	s.stop = stop
}

func (s *sseSubscription) Topic() string {
	return s.topic
}

func (s *sseSubscription) Events() <-chan Event {
	return s.events
}

// Close ends the subscription. It is safe to call more than once.
func (s *sseSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	// Once unsubscribed no publish can reach the channel.
	s.publisher.unsubscribe(s)
	s.closeEvents()
	return nil
}

func (s *sseSubscription) closeEvents() {
	s.closeOnce.Do(func() { close(s.events) })
}

// WriteSSE writes one event frame:
//
//	id: <version>
//	event: <type>
//	data: {json}
func WriteSSE(w io.Writer, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Version, event.Type, data)
	return err
}

// WriteComment writes an SSE comment line, which clients ignore. It opens
// the stream and keeps idle connections alive.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}

// Package pubsub fans canvas events out to browser subscribers.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
)

// Topics published by a playground session.
const (
	// TopicGraph carries canvas diffs. Subscribers start from a Snapshot.
	TopicGraph = "graph"
	// TopicNotifications carries operation outcomes and reconciliation
	// reports, the non-blocking toasts of the UI.
	TopicNotifications = "notifications"
)

// Event types.
const (
	EventGraphFull       = "full"
	EventGraphDiff       = "diff"
	EventOutcome         = "outcome"
	EventReconciled      = "reconciled"
	EventReconcileFailed = "reconcile-failed"
)

var (
	// ErrUnknownTopic is returned for topics the publisher has no
	// configuration for.
	ErrUnknownTopic = errors.New("unknown topic")
	// ErrClosed is returned once the publisher has been closed.
	ErrClosed = errors.New("publisher is closed")
)

// Event is one published message. Version increases per topic.
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Version int             `json:"version"`
}

// Decode unmarshals the payload of e into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Subscription delivers the events of one topic until it is closed.
type Subscription interface {
	Topic() string
	// Events is closed when the subscription or the publisher closes.
	Events() <-chan Event
	Close() error
}

// Publisher manages subscriptions and event publishing.
type Publisher interface {
	// Subscribe opens a subscription to topic. Cancelling ctx closes it.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends data, encoded as JSON, to every subscriber of topic.
	Publish(topic string, eventType string, data any) error

	Close() error
}

// TopicConfig controls what a new subscriber is replayed.
type TopicConfig struct {
	// BufferSize is the number of recent events kept (0 keeps none).
	BufferSize int
	// ReplayAll replays every kept event; otherwise only the latest.
	ReplayAll bool
}

// SessionTopics is the topic configuration of a playground session. Graph
// diffs are never replayed since subscribers start from a Snapshot; a late
// notification subscriber sees the latest toast.
func SessionTopics() map[string]TopicConfig {
	return map[string]TopicConfig{
		TopicGraph:         {},
		TopicNotifications: {BufferSize: 10},
	}
}

// Notification is the payload of TopicNotifications events.
type Notification struct {
	Operation string   `json:"operation"`
	OK        bool     `json:"ok"`
	Message   string   `json:"message,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

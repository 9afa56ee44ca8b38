package pubsub

import (
	"encoding/json"
	"fmt"

	"github.com/ritzau/kube-playground/pkg/lens"
	"github.com/ritzau/kube-playground/pkg/model"
)

// PublishDiff publishes a canvas change on TopicGraph. A diff that replaces
// the canvas goes out as EventGraphFull. Empty diffs are dropped.
func PublishDiff(p Publisher, diff *lens.GraphDiff) error {
	if p == nil || diff == nil || diff.Empty() {
		return nil
	}
	eventType := EventGraphDiff
	if diff.FullGraph {
		eventType = EventGraphFull
	}
	return p.Publish(TopicGraph, eventType, diff)
}

// Notify publishes n on TopicNotifications.
func Notify(p Publisher, eventType string, n Notification) error {
	if p == nil {
		return nil
	}
	return p.Publish(TopicNotifications, eventType, n)
}

// Snapshot returns the event a graph subscriber starts from: the whole of g
// as a diff from nothing.
func Snapshot(g *model.Graph) (Event, error) {
	data, err := json.Marshal(lens.ComputeDiff(nil, g))
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode graph: %w", err)
	}
	return Event{Topic: TopicGraph, Type: EventGraphFull, Data: data}, nil
}

package events

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Sink receives orchestration events as they are produced. Publishing is
// fire-and-forget from the orchestrator's point of view: a failed publish is
// reported but must not abort the run.
type Sink interface {
	Publish(e Event) error
}

// WatermillSink publishes events to one topic, conventionally
// "canvas:<session-id>".
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

var _ Sink = &WatermillSink{}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{publisher: publisher, topic: topic}
}

// TopicForSession names the per-session event topic.
func TopicForSession(sessionID string) string {
	return "canvas:" + sessionID
}

func (s *WatermillSink) Publish(e Event) error {
	payload, err := MarshalEvent(e)
	if err != nil {
		return err
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return errors.Wrapf(err, "publish %s event", e.EventType())
	}
	return nil
}

// NullSink discards events; used by the buffered /api/chat path and tests.
type NullSink struct{}

var _ Sink = NullSink{}

func (NullSink) Publish(Event) error { return nil }

// CollectorSink records events in order; test helper and buffered-response
// accumulator.
type CollectorSink struct {
	Events []Event
}

var _ Sink = &CollectorSink{}

func (c *CollectorSink) Publish(e Event) error {
	c.Events = append(c.Events, e)
	return nil
}

package events

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/go-go-golems/contextcanvas/pkg/claude"
)

// EventType names the discrete progress messages a canvas orchestration run
// emits, in the order they become available. Delivery is at-most-once per
// generated event; there is no resumption token.
type EventType string

const (
	EventTypeConnected    EventType = "connected"
	EventTypeToolUse      EventType = "tool_use"
	EventTypeCanvasUpdate EventType = "canvas_update"
	EventTypeMessage      EventType = "message"
	EventTypeUsage        EventType = "usage"
	EventTypeToolError    EventType = "tool_error"
	EventTypeError        EventType = "error"
	EventTypeDone         EventType = "done"
)

type Event interface {
	EventType() EventType
}

type ConnectedEvent struct {
	SessionID string `json:"session_id"`
}

func (ConnectedEvent) EventType() EventType { return EventTypeConnected }

type ToolUseEvent struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

func (ToolUseEvent) EventType() EventType { return EventTypeToolUse }

// CanvasUpdateEvent carries the redacted source and the fresh screenshot
// produced after one round of tool execution.
type CanvasUpdateEvent struct {
	Source   string `json:"source"`
	Image    string `json:"image,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

func (CanvasUpdateEvent) EventType() EventType { return EventTypeCanvasUpdate }

type MessageEvent struct {
	Text string `json:"text"`
}

func (MessageEvent) EventType() EventType { return EventTypeMessage }

type UsageEvent struct {
	Usage claude.Usage `json:"usage"`
}

func (UsageEvent) EventType() EventType { return EventTypeUsage }

type ToolErrorEvent struct {
	Kind    string `json:"kind"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message"`
}

func (ToolErrorEvent) EventType() EventType { return EventTypeToolError }

type ErrorEvent struct {
	Message string `json:"message"`
}

func (ErrorEvent) EventType() EventType { return EventTypeError }

type DoneEvent struct {
	FinalSource string       `json:"final_source"`
	Usage       claude.Usage `json:"usage"`
}

func (DoneEvent) EventType() EventType { return EventTypeDone }

// Envelope is the wire shape consumed by browsers: {"event": ..., "data": ...}.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func MarshalEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event data")
	}
	return json.Marshal(Envelope{Event: e.EventType(), Data: data})
}

// NewEventFromJSON decodes an envelope back into its typed event.
func NewEventFromJSON(b []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrap(err, "decode event envelope")
	}
	var e Event
	switch env.Event {
	case EventTypeConnected:
		e = &ConnectedEvent{}
	case EventTypeToolUse:
		e = &ToolUseEvent{}
	case EventTypeCanvasUpdate:
		e = &CanvasUpdateEvent{}
	case EventTypeMessage:
		e = &MessageEvent{}
	case EventTypeUsage:
		e = &UsageEvent{}
	case EventTypeToolError:
		e = &ToolErrorEvent{}
	case EventTypeError:
		e = &ErrorEvent{}
	case EventTypeDone:
		e = &DoneEvent{}
	default:
		return nil, errors.Errorf("unknown event type: %s", env.Event)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, e); err != nil {
			return nil, errors.Wrapf(err, "decode %s event", env.Event)
		}
	}
	return e, nil
}

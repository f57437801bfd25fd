package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventRouter fans orchestration events from publishers to per-session
// consumers. The default transport is an in-process gochannel pub/sub; the
// redisstream package swaps in Redis Streams for multi-process deployments.
type EventRouter struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	router       *message.Router
	logger       *watermillLogger
	verbose      bool
	prepareTopic func(ctx context.Context, topic string) error
}

type EventRouterOption func(*EventRouter)

func WithPublisher(p message.Publisher) EventRouterOption {
	return func(r *EventRouter) { r.Publisher = p }
}

func WithSubscriber(s message.Subscriber) EventRouterOption {
	return func(r *EventRouter) { r.Subscriber = s }
}

func WithVerbose(v bool) EventRouterOption {
	return func(r *EventRouter) { r.verbose = v }
}

// WithTopicPreparer installs transport-specific setup that must run before
// the first subscribe on a topic. The Redis Streams transport creates the
// consumer group at the stream tail here so a fresh subscriber does not
// replay prior runs' events.
func WithTopicPreparer(fn func(ctx context.Context, topic string) error) EventRouterOption {
	return func(r *EventRouter) { r.prepareTopic = fn }
}

func NewEventRouter(opts ...EventRouterOption) (*EventRouter, error) {
	r := &EventRouter{}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = newWatermillLogger(log.Logger, r.verbose)

	if r.Publisher == nil || r.Subscriber == nil {
		pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, r.logger)
		if r.Publisher == nil {
			r.Publisher = pubsub
		}
		if r.Subscriber == nil {
			r.Subscriber = pubsub
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, r.logger)
	if err != nil {
		return nil, errors.Wrap(err, "create message router")
	}
	r.router = router
	return r, nil
}

// PrepareTopic runs the transport's per-topic setup, if any. Callers must
// invoke it before subscribing to a topic for the first time; the
// in-memory transport needs nothing and returns nil.
func (r *EventRouter) PrepareTopic(ctx context.Context, topic string) error {
	if r.prepareTopic == nil {
		return nil
	}
	return r.prepareTopic(ctx, topic)
}

// AddHandler registers a no-publisher handler on topic. Handlers must be
// registered before Run.
func (r *EventRouter) AddHandler(name, topic string, fn func(msg *message.Message) error) {
	r.router.AddNoPublisherHandler(name, topic, r.Subscriber, fn)
}

func (r *EventRouter) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running closes once the router (and all handlers) are operational.
func (r *EventRouter) Running() <-chan struct{} {
	return r.router.Running()
}

func (r *EventRouter) Close() error {
	if err := r.router.Close(); err != nil {
		return errors.Wrap(err, "close router")
	}
	if err := r.Publisher.Close(); err != nil {
		return errors.Wrap(err, "close publisher")
	}
	return nil
}

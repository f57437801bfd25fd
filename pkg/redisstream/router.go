package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/contextcanvas/pkg/events"
)

// BuildRouter constructs an events.EventRouter backed by Redis Streams when
// enabled. If settings.Enabled is false, it returns the default in-memory
// router.
func BuildRouter(s Settings, verbose bool) (*events.EventRouter, error) {
	if !s.Enabled {
		return events.NewEventRouter(events.WithVerbose(verbose))
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := events.NewWatermillLoggerAdapter(log.Logger, verbose)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, err
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		return nil, err
	}

	return events.NewEventRouter(
		events.WithPublisher(message.Publisher(pub)),
		events.WithSubscriber(message.Subscriber(sub)),
		events.WithVerbose(verbose),
		events.WithTopicPreparer(func(ctx context.Context, topic string) error {
			return EnsureGroupAtTail(ctx, client, topic, s.Group)
		}),
	)
}

// EnsureGroupAtTail creates the consumer group for a stream at the tail ($)
// if it doesn't exist, so first subscribe does not replay history.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP means the group already exists.
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}

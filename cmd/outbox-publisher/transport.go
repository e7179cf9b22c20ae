package main

import (
	"context"
	"fmt"
	"io"

	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/kafka"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/pubsub"
)

type pubsubPublisher interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, msgs ...pubsub.Message) error
}

// pubsubBroker relays outbox records to Pub/Sub. The aggregate key becomes
// the ordering key and headers become attributes.
type pubsubBroker struct {
	client pubsubPublisher
}

func (b *pubsubBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}

func (b *pubsubBroker) Publish(ctx context.Context, msgs ...kafka.Message) error {
	out := make([]pubsub.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, pubsub.Message{
			Topic:       msg.Topic,
			OrderingKey: msg.Key,
			Data:        msg.Value,
			Attributes:  msg.Headers,
		})
	}
	return b.client.Publish(ctx, out...)
}

// openBroker connects the transport named by POKECARD_OUTBOX_TRANSPORT.
func openBroker(ctx context.Context, cfg *config.Config, topics []string, logg *logger.Logger) (brokerPublisher, io.Closer, error) {
	switch cfg.Outbox.Transport {
	case config.TransportPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, topics, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap pubsub: %w", err)
		}
		return &pubsubBroker{client: client}, client, nil
	case config.TransportKafka, "":
		producer, err := kafka.NewProducer(ctx, cfg.Kafka, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap kafka: %w", err)
		}
		return producer, producer, nil
	default:
		return nil, nil, fmt.Errorf("unknown outbox transport %q", cfg.Outbox.Transport)
	}
}

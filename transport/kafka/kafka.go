// Package kafka provides a Kafka transport for pullflow.
package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pullflow/internal/runtime"
	"github.com/drblury/pullflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a receiver consuming from a Kafka topic.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (runtime.Receiver, error) {
	mode, err := transport.ParseReceiveMode(cfg.GetReceiveMode())
	if err != nil {
		return nil, err
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:       cfg.GetKafkaBrokers(),
			Unmarshaler:   kafka.DefaultMarshaler{},
			ConsumerGroup: cfg.GetKafkaConsumerGroup(),
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return transport.NewSubscriberReceiver(subscriber, cfg.GetEntity(), mode, logger), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

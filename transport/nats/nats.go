// Package nats provides a NATS Core transport for pullflow.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pullflow/internal/runtime"
	"github.com/drblury/pullflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a receiver consuming from a NATS subject.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (runtime.Receiver, error) {
	mode, err := transport.ParseReceiveMode(cfg.GetReceiveMode())
	if err != nil {
		return nil, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         cfg.GetNATSURL(),
			Unmarshaler: &nats.NATSMarshaler{},
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
	return transport.NATSCapabilities
}

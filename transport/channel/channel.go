// Package channel provides an in-memory Go channel transport for pullflow.
// This transport is useful for testing and local development.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/pullflow/internal/runtime"
	"github.com/drblury/pullflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a receiver backed by an in-memory Go channel.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (runtime.Receiver, error) {
	mode, err := transport.ParseReceiveMode(cfg.GetReceiveMode())
	if err != nil {
		return nil, err
	}

	_, sub := Factory(gochannel.Config{Persistent: true}, logger)
	return transport.NewSubscriberReceiver(sub, cfg.GetEntity(), mode, logger), nil
}

// New creates a paired publisher and receiver sharing one in-memory channel.
// The channel is persistent, so messages published before the receiver's
// first receive call are still delivered. This is the easiest way to
// exercise a source without a broker.
func New(topic string, mode runtime.ReceiveMode, logger watermill.LoggerAdapter) (message.Publisher, *transport.SubscriberReceiver) {
	pub, sub := Factory(gochannel.Config{Persistent: true}, logger)
	return pub, transport.NewSubscriberReceiver(sub, topic, mode, logger)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

// Package transport defines the core interfaces and types for pullflow
// receivers. Each broker implementation (kafka, rabbitmq, sqs, etc.) lives in
// its own sub-package and registers itself with the transport registry.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/pullflow/internal/runtime"
)

// Builder is the function signature for creating a receiver from config.
// Each transport package provides a Builder that can be registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (runtime.Receiver, error)

// Config provides the configuration values needed by transports. The
// interface lets transports access only the keys they need without depending
// on the full config package.
type Config interface {
	// GetTransport returns the transport type name.
	GetTransport() string

	// GetEntity returns the queue, topic, or subject to consume from.
	GetEntity() string

	// GetReceiveMode returns "peeklock", "receiveanddelete", or "".
	GetReceiveMode() string

	// GetReceiveTimeout bounds a single receive call; zero means the
	// transport default.
	GetReceiveTimeout() time.Duration

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string
	GetJetStreamName() string
	GetJetStreamDurableName() string

	// AWS
	GetAWSRegion() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
	GetSQSQueueURL() string
	GetSQSWaitTime() time.Duration
	GetSQSVisibilityTimeout() time.Duration

	// Postgres
	GetPostgresURL() string
}

// ParseReceiveMode maps the config's receive mode string onto the runtime
// constant. The empty string defaults to peek-lock.
func ParseReceiveMode(mode string) (runtime.ReceiveMode, error) {
	switch strings.ToLower(mode) {
	case "", "peeklock":
		return runtime.ReceivePeekLock, nil
	case "receiveanddelete":
		return runtime.ReceiveAndDelete, nil
	default:
		return runtime.ReceivePeekLock, fmt.Errorf("unknown receive mode: %q", mode)
	}
}

package transport

// Capabilities describes the receive features supported by a transport
// backend. Use this to introspect what a registered transport can do before
// building a receiver against it.
type Capabilities struct {
	// Name is the human-readable name of the transport.
	Name string

	// SupportsPeekLock indicates envelopes can be held under a lock until
	// explicitly completed or abandoned.
	SupportsPeekLock bool

	// SupportsAbandon indicates an envelope can be returned to the broker
	// for redelivery. Requires SupportsPeekLock.
	SupportsAbandon bool

	// SupportsOrdering indicates the broker preserves receive order within
	// one entity/partition.
	SupportsOrdering bool

	// SupportsLongPolling indicates a receive call can block broker-side
	// waiting for a message instead of returning immediately.
	SupportsLongPolling bool
}

// SupportsManualAck reports whether acknowledgment handles produced from
// this transport's envelopes are functional.
func (c Capabilities) SupportsManualAck() bool {
	return c.SupportsPeekLock
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:                "channel",
		SupportsPeekLock:    true,
		SupportsAbandon:     true,
		SupportsOrdering:    true,
		SupportsLongPolling: false,
	}

	// KafkaCapabilities for the Kafka transport.
	KafkaCapabilities = Capabilities{
		Name:                "kafka",
		SupportsPeekLock:    true,
		SupportsAbandon:     true,
		SupportsOrdering:    true,
		SupportsLongPolling: true,
	}

	// RabbitMQCapabilities for the RabbitMQ/AMQP transport.
	RabbitMQCapabilities = Capabilities{
		Name:                "rabbitmq",
		SupportsPeekLock:    true,
		SupportsAbandon:     true,
		SupportsOrdering:    true,
		SupportsLongPolling: true,
	}

	// NATSCapabilities for the NATS Core transport.
	NATSCapabilities = Capabilities{
		Name:                "nats",
		SupportsPeekLock:    true,
		SupportsAbandon:     true,
		SupportsOrdering:    true,
		SupportsLongPolling: true,
	}

	// NATSJetStreamCapabilities for the native JetStream pull transport.
	NATSJetStreamCapabilities = Capabilities{
		Name:                "nats-jetstream",
		SupportsPeekLock:    true,
		SupportsAbandon:     true,
		SupportsOrdering:    true,
		SupportsLongPolling: true,
	}

	// AWSCapabilities for the watermill-aws SQS transport.
	AWSCapabilities = Capabilities{
		Name:                "aws",
		SupportsPeekLock:    true,
		SupportsAbandon:     true,
		SupportsOrdering:    false,
		SupportsLongPolling: true,
	}

	// SQSCapabilities for the native SQS transport.
	SQSCapabilities = Capabilities{
		Name:                "sqs",
		SupportsPeekLock:    true,
		SupportsAbandon:     true,
		SupportsOrdering:    false,
		SupportsLongPolling: true,
	}

	// PostgresCapabilities for the PostgreSQL table-backed transport. The
	// receiver polls, so long-polling is emulated client side.
	PostgresCapabilities = Capabilities{
		Name:                "postgres",
		SupportsPeekLock:    true,
		SupportsAbandon:     true,
		SupportsOrdering:    true,
		SupportsLongPolling: false,
	}
)

// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/pullflow/transport/aws"
	_ "github.com/drblury/pullflow/transport/channel"
	_ "github.com/drblury/pullflow/transport/jetstream"
	_ "github.com/drblury/pullflow/transport/kafka"
	_ "github.com/drblury/pullflow/transport/nats"
	_ "github.com/drblury/pullflow/transport/postgres"
	_ "github.com/drblury/pullflow/transport/rabbitmq"
	_ "github.com/drblury/pullflow/transport/sqs"
)

// Package pullflow turns a broker's pull-style receive API into a typed,
// push-style stream of decoded domain messages. A Source owns a single
// receive loop over a Receiver, decodes each envelope through a registry of
// type-tagged decoders, and multicasts the results to any number of
// subscriptions. The loop starts when the first subscription attaches and
// stops when the last one detaches, so an idle source costs nothing.
//
// Envelopes received under peek-lock can be settled manually through per-
// message acknowledgment handles, or automatically with WithAutoAcknowledge;
// under receive-and-delete the broker settles on receipt and manual handles
// report ErrManualAckUnsupported. Envelopes whose type tag matches no
// registered decoder are dropped without settlement so another consumer can
// claim them.
//
// # Transports
//
// Receivers for concrete brokers live under transport/ and register
// themselves with the default transport registry:
//   - channel: In-memory Go channels for testing
//   - kafka: Consumer-group streaming via Watermill
//   - rabbitmq: AMQP durable queues via Watermill
//   - nats: NATS Core via Watermill
//   - nats-jetstream: Native JetStream pull consumers
//   - aws: SQS through the Watermill AWS subscriber
//   - sqs: SQS directly on the AWS SDK with long polling
//   - postgres: A lock-then-confirm queue table in PostgreSQL
//
// Import transport/transports to register all of them, or import individual
// packages to keep the dependency surface small. The codec package provides
// JSON, protobuf, and passthrough decoders for the common payload encodings.
//
// A minimal setup builds a receiver, lists the decoders the consumer cares
// about, creates a Source, and ranges over a subscription's channel; see the
// examples directory for complete programs.
package pullflow

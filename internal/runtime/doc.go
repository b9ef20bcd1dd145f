/*
Package runtime provides the core streaming infrastructure for pullflow.

# Architecture Overview

The runtime package turns a broker's pull-style receive primitive into a
typed, multicast, push-style stream of decoded domain messages. One receive
loop per Source polls the Receiver and fans each envelope out to every active
subscription; each subscription filters, decodes, and optionally attaches an
acknowledgment handle before emitting the value.

# Package Structure

## Source (source.go)

Source is the central orchestrator a consumer depends on. Messages returns a
Subscription whose channel carries decoded domain messages in receive order.
Construction validates the receiver, the decoder set, and the compatibility
of auto-acknowledgment with the receiver's mode.

## Envelope Broadcast (broadcast.go)

envelopeBroadcaster owns the single receive goroutine. It is reference
counted: the loop starts when the first subscriber attaches and is cancelled
when the last one detaches, so the broker is polled at most once per Source
regardless of subscriber count.

## Decoder Routing (registry.go)

decoderRegistry maps type tags to decoders. Envelopes whose tag has no
registered decoder are dropped silently; untagged envelopes fall back to the
single registered decoder or fail the subscription.

## Acknowledgment (ack.go)

AckProvider binds an Acknowledgment handle to exactly one envelope. The
default provider passes through to the envelope's broker-side settlement;
tests substitute their own provider.

## Metrics (metrics.go)

SourceMetrics exposes Prometheus counters for received, emitted, dropped,
and failed envelopes plus acknowledgment outcomes. All methods are nil-safe.

# Sub-packages

  - config/: receiver configuration with validation
  - errors/: sentinel errors
  - ids/: ULID generation for subscription identifiers
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
  - metadata/: envelope property bag utilities

# Usage Example

	receiver, _ := transport.Build(ctx, cfg, logger)

	source, err := runtime.NewSource(receiver,
		[]runtime.Decoder{codec.JSON[OrderPlaced]("OrderPlaced")},
		runtime.WithAutoAcknowledge(),
	)
	if err != nil {
		return err
	}
	defer source.Close()

	sub, err := source.Messages(ctx)
	if err != nil {
		return err
	}
	for msg := range sub.C() {
		handle(msg.(*OrderPlaced))
	}
	if err := sub.Err(); err != nil {
		return err
	}
*/
package runtime

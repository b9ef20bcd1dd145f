package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pullflow/internal/runtime"
	metadatapkg "github.com/drblury/pullflow/internal/runtime/metadata"
)

// SubscriberReceiver adapts any Watermill subscriber into pullflow's
// pull-style Receiver. The subscription is opened lazily on the first
// ReceiveNext call and owned exclusively by this receiver; under
// receive-and-delete mode each message is acked on receipt, under peek-lock
// the returned envelope settles through the message's Ack/Nack.
type SubscriberReceiver struct {
	subscriber message.Subscriber
	topic      string
	mode       runtime.ReceiveMode
	logger     watermill.LoggerAdapter

	mu     sync.Mutex
	stream <-chan *message.Message
	cancel context.CancelFunc
	closed bool
}

// NewSubscriberReceiver wraps a Watermill subscriber for the given topic.
func NewSubscriberReceiver(subscriber message.Subscriber, topic string, mode runtime.ReceiveMode, logger watermill.LoggerAdapter) *SubscriberReceiver {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &SubscriberReceiver{
		subscriber: subscriber,
		topic:      topic,
		mode:       mode,
		logger:     logger,
	}
}

func (r *SubscriberReceiver) Mode() runtime.ReceiveMode { return r.mode }

func (r *SubscriberReceiver) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// ReceiveNext waits for the next message, the timeout, or ctx cancellation.
// A closed upstream subscription marks the receiver closed and returns
// (nil, nil) so the caller's loop can end cleanly.
func (r *SubscriberReceiver) ReceiveNext(ctx context.Context, timeout time.Duration) (runtime.Envelope, error) {
	stream, err := r.ensureStream()
	if err != nil {
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeoutCh:
		return nil, nil
	case msg, ok := <-stream:
		if !ok {
			r.markClosed()
			return nil, nil
		}
		return r.wrap(msg), nil
	}
}

func (r *SubscriberReceiver) ensureStream() (<-chan *message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("transport: receiver for topic %q is closed", r.topic)
	}
	if r.stream != nil {
		return r.stream, nil
	}

	// The stream outlives individual ReceiveNext contexts; it is torn down
	// by Close.
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := r.subscriber.Subscribe(streamCtx, r.topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: subscribe to %q: %w", r.topic, err)
	}
	r.stream = stream
	r.cancel = cancel
	return stream, nil
}

func (r *SubscriberReceiver) wrap(msg *message.Message) runtime.Envelope {
	if r.mode == runtime.ReceiveAndDelete {
		if !msg.Ack() {
			r.logger.Error("failed to ack message on receipt", nil, watermill.LogFields{
				"topic":        r.topic,
				"message_uuid": msg.UUID,
			})
		}
		return &watermillEnvelope{msg: msg}
	}
	return &lockedWatermillEnvelope{watermillEnvelope: watermillEnvelope{msg: msg}}
}

func (r *SubscriberReceiver) markClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Close cancels the upstream subscription and closes the subscriber.
// Idempotent.
func (r *SubscriberReceiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return r.subscriber.Close()
}

// watermillEnvelope exposes a Watermill message as a pullflow envelope
// without settlement support.
type watermillEnvelope struct {
	msg *message.Message
}

func (e *watermillEnvelope) Properties() metadatapkg.Metadata {
	return metadatapkg.FromWatermill(e.msg.Metadata)
}

func (e *watermillEnvelope) Payload() []byte {
	return e.msg.Payload
}

// lockedWatermillEnvelope additionally settles through the message's
// Ack/Nack, giving peek-lock semantics on top of any Watermill broker.
// Ack and Nack are idempotent in Watermill, so the envelope tracks
// settlement itself to reject a second attempt.
type lockedWatermillEnvelope struct {
	watermillEnvelope
	settled atomic.Bool
}

func (e *lockedWatermillEnvelope) Complete(context.Context) error {
	if !e.settled.CompareAndSwap(false, true) || !e.msg.Ack() {
		return fmt.Errorf("transport: message %s was already settled", e.msg.UUID)
	}
	return nil
}

func (e *lockedWatermillEnvelope) Abandon(context.Context) error {
	if !e.settled.CompareAndSwap(false, true) || !e.msg.Nack() {
		return fmt.Errorf("transport: message %s was already settled", e.msg.UUID)
	}
	return nil
}

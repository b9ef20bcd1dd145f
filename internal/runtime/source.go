package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/pullflow/internal/runtime/errors"
	idspkg "github.com/drblury/pullflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/pullflow/internal/runtime/logging"
)

const (
	// DefaultReceiveTimeout bounds a single receive call so cooperative
	// cancellation stays responsive even when the receiver cannot observe
	// context cancellation itself.
	DefaultReceiveTimeout = 10 * time.Second

	// autoAckTimeout bounds each fire-and-forget completion.
	autoAckTimeout = 30 * time.Second

	tracerName = "github.com/drblury/pullflow"
)

// Option customises Source construction.
type Option func(*sourceOptions)

type sourceOptions struct {
	autoAck        bool
	ackProvider    AckProvider
	logger         loggingpkg.ServiceLogger
	metrics        *SourceMetrics
	receiveTimeout time.Duration
	typeTagKey     string
	tracerProvider trace.TracerProvider
	propagator     propagation.TextMapPropagator
}

// WithAutoAcknowledge completes every envelope automatically after its
// decoded message has been emitted. Requires a peek-lock receiver.
func WithAutoAcknowledge() Option {
	return func(o *sourceOptions) { o.autoAck = true }
}

// WithAckProvider substitutes the acknowledgment control provider. Mostly
// useful in tests.
func WithAckProvider(provider AckProvider) Option {
	return func(o *sourceOptions) { o.ackProvider = provider }
}

// WithLogger sets the logger used by the source and its receive loop.
func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(o *sourceOptions) { o.logger = log }
}

// WithMetrics enables Prometheus instrumentation. The collector must be
// registered by the caller.
func WithMetrics(metrics *SourceMetrics) Option {
	return func(o *sourceOptions) { o.metrics = metrics }
}

// WithReceiveTimeout bounds each individual receive call.
func WithReceiveTimeout(timeout time.Duration) Option {
	return func(o *sourceOptions) { o.receiveTimeout = timeout }
}

// WithTypeTagProperty overrides the envelope property consulted for decoder
// routing.
func WithTypeTagProperty(key string) Option {
	return func(o *sourceOptions) { o.typeTagKey = key }
}

// WithTracerProvider sets the OpenTelemetry tracer provider used for the
// per-message emit span. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *sourceOptions) { o.tracerProvider = tp }
}

// WithPropagator sets the propagator used to pick up remote trace context
// from envelope properties. Defaults to the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *sourceOptions) { o.propagator = p }
}

// Source converts a Receiver's pull loop into a typed, multicast stream of
// decoded domain messages. One Source owns one receive loop; any number of
// subscriptions observe it.
type Source struct {
	receiver    Receiver
	registry    *decoderRegistry
	acks        AckProvider
	autoAck     bool
	typeTagKey  string
	log         loggingpkg.ServiceLogger
	metrics     *SourceMetrics
	tracer      trace.Tracer
	propagator  propagation.TextMapPropagator
	broadcaster *envelopeBroadcaster

	closeOnce sync.Once
}

// NewSource validates the arguments and builds a Source. The receive loop
// does not start until the first subscription attaches.
func NewSource(receiver Receiver, decoders []Decoder, opts ...Option) (*Source, error) {
	if receiver == nil {
		return nil, errspkg.ErrReceiverRequired
	}

	registry, err := newDecoderRegistry(decoders)
	if err != nil {
		return nil, err
	}

	o := sourceOptions{
		receiveTimeout: DefaultReceiveTimeout,
		typeTagKey:     TypeTagProperty,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if o.autoAck && receiver.Mode() != ReceivePeekLock {
		return nil, errspkg.ErrAutoAckUnsupported
	}
	if o.logger == nil {
		o.logger = loggingpkg.Nop()
	}
	if o.ackProvider == nil {
		o.ackProvider = NewSettlerAckProvider(receiver.Mode())
	}
	if o.metrics != nil {
		o.ackProvider = &countingAckProvider{inner: o.ackProvider, metrics: o.metrics}
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.propagator == nil {
		o.propagator = otel.GetTextMapPropagator()
	}

	log := o.logger.With(loggingpkg.LogFields{"receive_mode": receiver.Mode().String()})
	s := &Source{
		receiver:    receiver,
		registry:    registry,
		acks:        o.ackProvider,
		autoAck:     o.autoAck,
		typeTagKey:  o.typeTagKey,
		log:         log,
		metrics:     o.metrics,
		tracer:      o.tracerProvider.Tracer(tracerName),
		propagator:  o.propagator,
		broadcaster: newEnvelopeBroadcaster(receiver, o.receiveTimeout, log, o.metrics),
	}

	log.Debug("source created", loggingpkg.LogFields{
		"decoders": registry.tags(),
		"auto_ack": o.autoAck,
	})
	return s, nil
}

// Subscription is one activation of the message stream. C carries decoded
// domain messages in receive order and closes exactly once; after it closes,
// Err reports the terminal error, if any.
type Subscription struct {
	id   string
	out  chan any
	done chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	detach    func()
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// C is the stream of decoded domain messages. Values are emitted on the
// receive loop's goroutine lineage, not on any fixed thread.
func (s *Subscription) C() <-chan any { return s.out }

// Err returns the error that terminated the stream, or nil after a clean
// close. Only meaningful once C is closed.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close detaches from the shared stream. Idempotent; the receive loop stops
// once the last subscription detaches.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.detach()
	})
}

func (s *Subscription) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Messages attaches a new subscription to the shared envelope stream. Each
// call re-subscribes independently; the underlying receive loop is started
// at most once regardless of how many subscriptions are active. ctx bounds
// the subscription's lifetime.
func (s *Source) Messages(ctx context.Context) (*Subscription, error) {
	raw, err := s.broadcaster.subscribe()
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		id:     idspkg.CreateULID(),
		out:    make(chan any),
		done:   make(chan struct{}),
		detach: func() { s.broadcaster.unsubscribe(raw) },
	}

	go s.pump(ctx, raw, sub)

	s.log.Debug("subscription attached", loggingpkg.LogFields{"sub_id": sub.id})
	return sub, nil
}

// Close disposes the source and stops the receive loop. Idempotent. The
// receiver itself stays open; whoever built it closes it.
func (s *Source) Close() {
	s.closeOnce.Do(func() {
		s.broadcaster.close()
		s.log.Debug("source closed", nil)
	})
}

// pump drains one raw envelope subscription through filter → decode →
// attach → emit → auto-ack, in that order, until the stream or the consumer
// ends it.
func (s *Source) pump(ctx context.Context, raw *envelopeSubscription, sub *Subscription) {
	defer close(sub.out)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case env, ok := <-raw.ch:
			if !ok {
				select {
				case err := <-raw.errCh:
					sub.setErr(err)
				default:
				}
				return
			}
			if !s.handleEnvelope(ctx, env, sub) {
				return
			}
		}
	}
}

// handleEnvelope processes one envelope for one subscription. It returns
// false when the subscription must terminate.
func (s *Source) handleEnvelope(ctx context.Context, env Envelope, sub *Subscription) bool {
	dec, err := s.registry.resolve(env, s.typeTagKey)
	if err != nil {
		s.metrics.IncDecodeFailure()
		sub.setErr(err)
		return false
	}
	if dec == nil {
		// Not interested: leave the envelope unsettled for redelivery or
		// another consumer of the same entity.
		s.metrics.IncDropped()
		tag, _ := typeTagOf(env, s.typeTagKey)
		s.log.Trace("dropping envelope with unmatched type tag", loggingpkg.LogFields{
			"sub_id":   sub.id,
			"type_tag": tag,
		})
		return true
	}

	value, err := dec.Decode(env.Payload())
	if err != nil {
		s.metrics.IncDecodeFailure()
		sub.setErr(fmt.Errorf("pullflow: decode %q envelope: %w", dec.TypeTag(), err))
		return false
	}

	if ackable, ok := value.(Ackable); ok {
		ackable.AttachAck(s.acks.AckFor(env))
	}

	// Continue the producer's trace when the envelope carries one.
	emitCtx := s.propagator.Extract(ctx, propagation.MapCarrier(env.Properties()))

	emitCtx, span := s.tracer.Start(emitCtx, "pullflow.emit", trace.WithAttributes(
		attribute.String("messaging.message.type", dec.TypeTag()),
		attribute.String("pullflow.subscription_id", sub.id),
	))
	defer span.End()

	select {
	case sub.out <- value:
	case <-emitCtx.Done():
		return false
	case <-sub.done:
		return false
	}
	s.metrics.IncEmitted(dec.TypeTag())

	if s.autoAck {
		go s.completeEnvelope(env)
	}
	return true
}

// completeEnvelope is the fire-and-forget auto-acknowledge path. A delivered
// message must not be retroactively invalidated, so failures are logged and
// counted but never surfaced to the stream.
func (s *Source) completeEnvelope(env Envelope) {
	settler, ok := env.(Settler)
	if !ok {
		s.metrics.IncAutoAckFailure()
		s.log.Error("auto-acknowledge skipped", errspkg.ErrNotSettleable, nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), autoAckTimeout)
	defer cancel()

	if err := settler.Complete(ctx); err != nil {
		s.metrics.IncAutoAckFailure()
		s.log.Error("auto-acknowledge failed", err, nil)
	}
}

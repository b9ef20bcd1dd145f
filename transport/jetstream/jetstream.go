// Package jetstream provides a native NATS JetStream pull transport for
// pullflow. Unlike the watermill-backed transports it talks to JetStream's
// pull consumer API directly, so each ReceiveNext maps onto a single Fetch
// against the durable consumer.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/nats-io/nats.go"

	"github.com/drblury/pullflow/internal/runtime"
	"github.com/drblury/pullflow/internal/runtime/metadata"
	"github.com/drblury/pullflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

const (
	// DefaultStreamName is used when the config does not name a stream.
	DefaultStreamName = "PULLFLOW"

	// DefaultMaxDeliver is the default max delivery attempts.
	DefaultMaxDeliver = 3

	// DefaultAckWait is how long JetStream holds an unacked message before
	// redelivery.
	DefaultAckWait = 30 * time.Second

	// DefaultFetchWait bounds a Fetch when the caller passes no timeout.
	DefaultFetchWait = time.Second
)

// ConnectFactory allows overriding the NATS connection creation for testing.
var ConnectFactory = func(url string) (*nats.Conn, error) {
	return nats.Connect(url)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
}

// Config holds JetStream-specific configuration.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// StreamName is the JetStream stream to consume from. Defaults to
	// DefaultStreamName.
	StreamName string

	// DurableName is the durable consumer name. Defaults to a name derived
	// from the subject.
	DurableName string

	// Subject is the subject to consume, relative to the stream.
	Subject string

	// MaxDeliver is the maximum number of delivery attempts.
	MaxDeliver int

	// AckWait is the duration JetStream waits for an ack before redelivery.
	AckWait time.Duration

	// Mode selects peek-lock or receive-and-delete semantics.
	Mode runtime.ReceiveMode
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.DurableName == "" {
		c.DurableName = "consumer_" + c.Subject
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	return c
}

// Build creates a receiver pulling from a durable JetStream consumer.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (runtime.Receiver, error) {
	mode, err := transport.ParseReceiveMode(cfg.GetReceiveMode())
	if err != nil {
		return nil, err
	}

	return New(Config{
		URL:         cfg.GetNATSURL(),
		StreamName:  cfg.GetJetStreamName(),
		DurableName: cfg.GetJetStreamDurableName(),
		Subject:     cfg.GetEntity(),
		Mode:        mode,
	}, logger)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

// Receiver pulls messages from a durable JetStream consumer one at a time.
type Receiver struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	config Config
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

// New connects to NATS, ensures the stream and durable consumer exist, and
// opens a pull subscription on the configured subject.
func New(cfg Config, logger watermill.LoggerAdapter) (*Receiver, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	nc, err := ConnectFactory(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(js, cfg, logger); err != nil {
		nc.Close()
		return nil, err
	}

	subject := cfg.StreamName + "." + cfg.Subject
	consumerCfg := &nats.ConsumerConfig{
		Durable:       cfg.DurableName,
		FilterSubject: subject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
		DeliverPolicy: nats.DeliverAllPolicy,
	}
	if _, err := js.AddConsumer(cfg.StreamName, consumerCfg); err != nil {
		if _, err := js.UpdateConsumer(cfg.StreamName, consumerCfg); err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := js.PullSubscribe(subject, cfg.DurableName)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	return &Receiver{
		nc:     nc,
		sub:    sub,
		config: cfg,
		logger: logger,
	}, nil
}

func ensureStream(js nats.JetStreamContext, cfg Config, logger watermill.LoggerAdapter) error {
	streamCfg := &nats.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.StreamName + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour * 7,
	}

	_, err := js.AddStream(streamCfg)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream %q: %w", cfg.StreamName, err)
	}

	// The stream already exists, so apply our config to it.
	if _, err := js.UpdateStream(streamCfg); err != nil {
		logger.Error("failed to update existing JetStream stream", err, watermill.LogFields{
			"stream": cfg.StreamName,
		})
		return fmt.Errorf("failed to update stream %q: %w", cfg.StreamName, err)
	}
	return nil
}

func (r *Receiver) Mode() runtime.ReceiveMode { return r.config.Mode }

func (r *Receiver) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// ReceiveNext fetches a single message from the pull consumer. A fetch
// timeout is not an error and yields (nil, nil).
func (r *Receiver) ReceiveNext(ctx context.Context, timeout time.Duration) (runtime.Envelope, error) {
	if !r.IsOpen() {
		return nil, fmt.Errorf("jetstream: receiver for %q is closed", r.config.Subject)
	}
	if timeout <= 0 {
		timeout = DefaultFetchWait
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msgs, err := r.sub.Fetch(1, nats.Context(fetchCtx))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("jetstream: fetch from %q: %w", r.config.Subject, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	msg := msgs[0]
	if r.config.Mode == runtime.ReceiveAndDelete {
		if err := msg.Ack(); err != nil {
			r.logger.Error("failed to ack message on receipt", err, watermill.LogFields{
				"subject": msg.Subject,
			})
		}
		return &jetstreamEnvelope{msg: msg}, nil
	}
	return &lockedJetstreamEnvelope{jetstreamEnvelope{msg: msg}}, nil
}

// Close drains the pull subscription and closes the connection. Idempotent.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := r.sub.Unsubscribe()
	r.nc.Close()
	return err
}

// jetstreamEnvelope exposes a fetched JetStream message without settlement.
type jetstreamEnvelope struct {
	msg *nats.Msg
}

func (e *jetstreamEnvelope) Properties() metadata.Metadata {
	props := metadata.Metadata{}
	for k, v := range e.msg.Header {
		if len(v) > 0 {
			props[k] = v[0]
		}
	}
	return props
}

func (e *jetstreamEnvelope) Payload() []byte {
	return e.msg.Data
}

// lockedJetstreamEnvelope settles through JetStream's explicit ack protocol.
type lockedJetstreamEnvelope struct {
	jetstreamEnvelope
}

func (e *lockedJetstreamEnvelope) Complete(context.Context) error {
	return e.msg.Ack()
}

func (e *lockedJetstreamEnvelope) Abandon(context.Context) error {
	return e.msg.Nak()
}

// Package sqs provides a native AWS SQS transport for pullflow built
// directly on the AWS SDK. Each ReceiveNext maps onto a single long-poll
// ReceiveMessage call; peek-lock settlement uses DeleteMessage and
// ChangeMessageVisibility.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/drblury/pullflow/internal/runtime"
	"github.com/drblury/pullflow/internal/runtime/metadata"
	"github.com/drblury/pullflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "sqs"

const (
	// DefaultWaitTime is the long-poll duration when none is configured.
	DefaultWaitTime = 10 * time.Second

	// MaxWaitTime is SQS's long-poll ceiling.
	MaxWaitTime = 20 * time.Second
)

// Client is the subset of the SQS API the receiver uses.
type Client interface {
	ReceiveMessage(ctx context.Context, params *amazonsqs.ReceiveMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *amazonsqs.DeleteMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *amazonsqs.ChangeMessageVisibilityInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.ChangeMessageVisibilityOutput, error)
}

// DefaultConfigLoader allows overriding the AWS config loader for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// ClientFactory allows overriding the SQS client creation for testing.
var ClientFactory = func(awsCfg aws.Config, endpoint string) Client {
	return amazonsqs.NewFromConfig(awsCfg, func(o *amazonsqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.SQSCapabilities)
}

// Build creates a receiver polling an SQS queue.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (runtime.Receiver, error) {
	mode, err := transport.ParseReceiveMode(cfg.GetReceiveMode())
	if err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	queueURL := cfg.GetSQSQueueURL()
	if queueURL == "" {
		queueURL = cfg.GetEntity()
	}
	if queueURL == "" {
		return nil, fmt.Errorf("sqs: queue URL is required")
	}

	return NewReceiver(ClientFactory(awsCfg, cfg.GetAWSEndpoint()), Options{
		QueueURL:          queueURL,
		Mode:              mode,
		WaitTime:          cfg.GetSQSWaitTime(),
		VisibilityTimeout: cfg.GetSQSVisibilityTimeout(),
		Logger:            logger,
	}), nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.SQSCapabilities
}

func loadAWSConfig(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if region := cfg.GetAWSRegion(); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if accessKey, secretKey := cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey(); accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			}),
		))
	}

	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("Failed to load AWS default config", err, watermill.LogFields{})
		return aws.Config{}, err
	}
	return awsCfg, nil
}

// Options configures an SQS receiver.
type Options struct {
	// QueueURL is the full URL of the queue to poll.
	QueueURL string

	// Mode selects peek-lock or receive-and-delete semantics.
	Mode runtime.ReceiveMode

	// WaitTime is the long-poll duration per ReceiveMessage call, capped at
	// MaxWaitTime.
	WaitTime time.Duration

	// VisibilityTimeout overrides the queue's visibility timeout for
	// received messages. Zero keeps the queue default.
	VisibilityTimeout time.Duration

	Logger watermill.LoggerAdapter
}

// Receiver polls an SQS queue one message per ReceiveNext call.
type Receiver struct {
	client  Client
	options Options

	mu     sync.Mutex
	closed bool
}

// NewReceiver wraps an SQS client as a pull receiver.
func NewReceiver(client Client, options Options) *Receiver {
	if options.Logger == nil {
		options.Logger = watermill.NopLogger{}
	}
	if options.WaitTime <= 0 {
		options.WaitTime = DefaultWaitTime
	}
	if options.WaitTime > MaxWaitTime {
		options.WaitTime = MaxWaitTime
	}
	return &Receiver{client: client, options: options}
}

func (r *Receiver) Mode() runtime.ReceiveMode { return r.options.Mode }

func (r *Receiver) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// ReceiveNext long-polls the queue for one message. An empty poll is not an
// error and yields (nil, nil). The caller's timeout caps the poll duration.
func (r *Receiver) ReceiveNext(ctx context.Context, timeout time.Duration) (runtime.Envelope, error) {
	if !r.IsOpen() {
		return nil, fmt.Errorf("sqs: receiver for %q is closed", r.options.QueueURL)
	}

	wait := r.options.WaitTime
	if timeout > 0 && timeout < wait {
		wait = timeout
	}

	out, err := r.client.ReceiveMessage(ctx, &amazonsqs.ReceiveMessageInput{
		QueueUrl:              aws.String(r.options.QueueURL),
		MaxNumberOfMessages:   1,
		WaitTimeSeconds:       int32(wait / time.Second),
		VisibilityTimeout:     int32(r.options.VisibilityTimeout / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyError("receive", r.options.QueueURL, err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	msg := out.Messages[0]
	if r.options.Mode == runtime.ReceiveAndDelete {
		if _, err := r.client.DeleteMessage(ctx, &amazonsqs.DeleteMessageInput{
			QueueUrl:      aws.String(r.options.QueueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			r.options.Logger.Error("failed to delete message on receipt", err, watermill.LogFields{
				"queue_url":  r.options.QueueURL,
				"message_id": aws.ToString(msg.MessageId),
			})
		}
		return &sqsEnvelope{msg: msg}, nil
	}

	return &lockedSQSEnvelope{
		sqsEnvelope: sqsEnvelope{msg: msg},
		client:      r.client,
		queueURL:    r.options.QueueURL,
	}, nil
}

// Close marks the receiver closed. The SQS client carries no connection
// state, so there is nothing else to release. Idempotent.
func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// classifyError annotates SDK failures with the SQS API error code when the
// failure is a service response rather than a transport problem.
func classifyError(op, queueURL string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("sqs: %s on %q failed with %s: %w", op, queueURL, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("sqs: %s on %q: %w", op, queueURL, err)
}

// sqsEnvelope exposes a received SQS message without settlement.
type sqsEnvelope struct {
	msg types.Message
}

func (e *sqsEnvelope) Properties() metadata.Metadata {
	props := metadata.Metadata{}
	for k, v := range e.msg.MessageAttributes {
		if v.StringValue != nil {
			props[k] = *v.StringValue
		}
	}
	return props
}

func (e *sqsEnvelope) Payload() []byte {
	return []byte(aws.ToString(e.msg.Body))
}

// lockedSQSEnvelope settles through the message's receipt handle. Complete
// deletes the message; Abandon zeroes its visibility timeout so the broker
// redelivers it immediately.
type lockedSQSEnvelope struct {
	sqsEnvelope
	client   Client
	queueURL string
}

func (e *lockedSQSEnvelope) Complete(ctx context.Context) error {
	_, err := e.client.DeleteMessage(ctx, &amazonsqs.DeleteMessageInput{
		QueueUrl:      aws.String(e.queueURL),
		ReceiptHandle: e.msg.ReceiptHandle,
	})
	if err != nil {
		return classifyError("delete", e.queueURL, err)
	}
	return nil
}

func (e *lockedSQSEnvelope) Abandon(ctx context.Context) error {
	_, err := e.client.ChangeMessageVisibility(ctx, &amazonsqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(e.queueURL),
		ReceiptHandle:     e.msg.ReceiptHandle,
		VisibilityTimeout: 0,
	})
	if err != nil {
		return classifyError("change visibility", e.queueURL, err)
	}
	return nil
}

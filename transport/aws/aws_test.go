package aws

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pullflow/transport"
)

func TestRegister(t *testing.T) {
	require.True(t, transport.DefaultRegistry.Has(TransportName))

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "aws", caps.Name)
	assert.True(t, caps.SupportsLongPolling)
	assert.False(t, caps.SupportsOrdering)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.AWSCapabilities, Capabilities())
}

func TestBuild(t *testing.T) {
	t.Run("builds receiver with stubbed loader and factory", func(t *testing.T) {
		originalLoader := DefaultConfigLoader
		originalFactory := SubscriberFactory
		defer func() {
			DefaultConfigLoader = originalLoader
			SubscriberFactory = originalFactory
		}()

		DefaultConfigLoader = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (awssdk.Config, error) {
			return awssdk.Config{}, nil
		}

		var gotCfg sqs.SubscriberConfig
		SubscriberFactory = func(cfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			gotCfg = cfg
			return &mockSubscriber{}, nil
		}

		cfg := &mockConfig{entity: "orders", region: "eu-central-1", endpoint: "http://localhost:4566"}
		recv, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		require.NotNil(t, recv)
		assert.Equal(t, "eu-central-1", gotCfg.AWSConfig.Region)
		assert.Len(t, gotCfg.OptFns, 1, "custom endpoint should install a resolver")
	})

	t.Run("loader error is returned", func(t *testing.T) {
		originalLoader := DefaultConfigLoader
		defer func() { DefaultConfigLoader = originalLoader }()
		DefaultConfigLoader = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (awssdk.Config, error) {
			return awssdk.Config{}, assert.AnError
		}

		_, err := Build(context.Background(), &mockConfig{}, watermill.NopLogger{})
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("invalid endpoint is rejected", func(t *testing.T) {
		originalLoader := DefaultConfigLoader
		defer func() { DefaultConfigLoader = originalLoader }()
		DefaultConfigLoader = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (awssdk.Config, error) {
			return awssdk.Config{}, nil
		}

		_, err := Build(context.Background(), &mockConfig{endpoint: "://bad"}, watermill.NopLogger{})
		assert.Error(t, err)
	})

	t.Run("rejects invalid receive mode", func(t *testing.T) {
		_, err := Build(context.Background(), &mockConfig{receiveMode: "bogus"}, watermill.NopLogger{})
		assert.Error(t, err)
	})
}

func TestTransportName(t *testing.T) {
	assert.Equal(t, "aws", TransportName)
}

type mockConfig struct {
	entity      string
	receiveMode string
	region      string
	endpoint    string
}

func (m *mockConfig) GetTransport() string                   { return TransportName }
func (m *mockConfig) GetEntity() string                      { return m.entity }
func (m *mockConfig) GetReceiveMode() string                 { return m.receiveMode }
func (m *mockConfig) GetReceiveTimeout() time.Duration       { return 0 }
func (m *mockConfig) GetKafkaBrokers() []string              { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string          { return "" }
func (m *mockConfig) GetRabbitMQURL() string                 { return "" }
func (m *mockConfig) GetNATSURL() string                     { return "" }
func (m *mockConfig) GetJetStreamName() string               { return "" }
func (m *mockConfig) GetJetStreamDurableName() string        { return "" }
func (m *mockConfig) GetAWSRegion() string                   { return m.region }
func (m *mockConfig) GetAWSAccessKeyID() string              { return "" }
func (m *mockConfig) GetAWSSecretAccessKey() string          { return "" }
func (m *mockConfig) GetAWSEndpoint() string                 { return m.endpoint }
func (m *mockConfig) GetSQSQueueURL() string                 { return "" }
func (m *mockConfig) GetSQSWaitTime() time.Duration          { return 0 }
func (m *mockConfig) GetSQSVisibilityTimeout() time.Duration { return 0 }
func (m *mockConfig) GetPostgresURL() string                 { return "" }

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (m *mockSubscriber) Close() error { return nil }

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pullflow/internal/runtime"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.Has("fake"))

	r.Register("fake", fakeBuilder(nil))
	assert.True(t, r.Has("fake"))
	assert.Contains(t, r.Names(), "fake")
}

func TestRegistry_RegisterWithCapabilities(t *testing.T) {
	r := NewRegistry()
	caps := Capabilities{Name: "fake", SupportsPeekLock: true, SupportsAbandon: true}
	r.RegisterWithCapabilities("fake", fakeBuilder(nil), caps)

	got := r.GetCapabilities("fake")
	assert.Equal(t, caps, got)
	assert.True(t, got.SupportsManualAck())
}

func TestRegistry_GetCapabilities_Unknown(t *testing.T) {
	r := NewRegistry()
	caps := r.GetCapabilities("nope")
	assert.Equal(t, "nope", caps.Name)
	assert.False(t, caps.SupportsManualAck())
}

func TestRegistry_Build(t *testing.T) {
	t.Run("dispatches on transport name", func(t *testing.T) {
		r := NewRegistry()
		want := &fakeReceiver{}
		r.Register("fake", fakeBuilder(want))

		got, err := r.Build(context.Background(), &mockConfig{transport: "fake"}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Same(t, want, got)
	})

	t.Run("nil config", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Build(context.Background(), nil, watermill.NopLogger{})
		assert.Error(t, err)
	})

	t.Run("unknown transport", func(t *testing.T) {
		r := NewRegistry()
		r.Register("fake", fakeBuilder(nil))

		_, err := r.Build(context.Background(), &mockConfig{transport: "missing"}, watermill.NopLogger{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown transport")
		assert.Contains(t, err.Error(), "fake")
	})
}

func fakeBuilder(recv runtime.Receiver) Builder {
	return func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (runtime.Receiver, error) {
		return recv, nil
	}
}

type fakeReceiver struct{}

func (f *fakeReceiver) Mode() runtime.ReceiveMode { return runtime.ReceivePeekLock }
func (f *fakeReceiver) IsOpen() bool              { return true }
func (f *fakeReceiver) ReceiveNext(ctx context.Context, timeout time.Duration) (runtime.Envelope, error) {
	return nil, nil
}
func (f *fakeReceiver) Close() error { return nil }

package runtime

import (
	"context"
	"errors"
	"testing"

	errspkg "github.com/drblury/pullflow/internal/runtime/errors"
)

func TestSettlerAckProviderBindsToEnvelope(t *testing.T) {
	provider := NewSettlerAckProvider(ReceivePeekLock)
	envA := newFakeEnvelope("T", nil)
	envB := newFakeEnvelope("T", nil)

	ackA := provider.AckFor(envA)
	ackB := provider.AckFor(envB)

	if err := ackA.Complete(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if envA.completions() != 1 {
		t.Fatalf("expected envelope A to be completed once, got %d", envA.completions())
	}
	if envB.completions() != 0 {
		t.Fatalf("expected envelope B to stay untouched, got %d completions", envB.completions())
	}

	if err := ackB.Abandon(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if envB.abandonments() != 1 {
		t.Fatalf("expected envelope B to be abandoned once, got %d", envB.abandonments())
	}
	if envA.abandonments() != 0 {
		t.Fatalf("expected envelope A to stay untouched, got %d abandonments", envA.abandonments())
	}
}

func TestSettlerAckProviderSurfacesBrokerErrors(t *testing.T) {
	provider := NewSettlerAckProvider(ReceivePeekLock)
	env := newFakeEnvelope("T", nil)
	env.settleErr = errors.New("lock lost")

	ack := provider.AckFor(env)
	if err := ack.Complete(context.Background()); err == nil {
		t.Fatal("expected the broker error to surface")
	}
	if err := ack.Abandon(context.Background()); err == nil {
		t.Fatal("expected the broker error to surface")
	}
}

func TestSettlerAckProviderDeniesReceiveAndDelete(t *testing.T) {
	provider := NewSettlerAckProvider(ReceiveAndDelete)
	ack := provider.AckFor(newFakeEnvelope("T", nil))

	if err := ack.Complete(context.Background()); !errors.Is(err, errspkg.ErrManualAckUnsupported) {
		t.Fatalf("expected ErrManualAckUnsupported, got %v", err)
	}
	if err := ack.Abandon(context.Background()); !errors.Is(err, errspkg.ErrManualAckUnsupported) {
		t.Fatalf("expected ErrManualAckUnsupported, got %v", err)
	}
}

func TestSettlerAckProviderDeniesUnsettleableEnvelopes(t *testing.T) {
	provider := NewSettlerAckProvider(ReceivePeekLock)
	ack := provider.AckFor(&plainEnvelope{})

	if err := ack.Complete(context.Background()); !errors.Is(err, errspkg.ErrNotSettleable) {
		t.Fatalf("expected ErrNotSettleable, got %v", err)
	}
}

func TestCountingAckProviderDelegates(t *testing.T) {
	inner := &recordingAck{}
	provider := &countingAckProvider{inner: &staticAckProvider{ack: inner}}

	ack := provider.AckFor(newFakeEnvelope("T", nil))
	if err := ack.Complete(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.completions() != 1 {
		t.Fatalf("expected delegation to inner handle, got %d completions", inner.completions())
	}
}

type staticAckProvider struct {
	ack Acknowledgment
}

func (p *staticAckProvider) AckFor(Envelope) Acknowledgment { return p.ack }

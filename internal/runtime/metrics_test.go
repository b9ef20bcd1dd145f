package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSourceMetricsRegisterIsIdempotent(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSourceMetrics(registry)

	if err := metrics.Register(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := metrics.Register(); err != nil {
		t.Fatalf("unexpected error on second register: %v", err)
	}

	metrics.Unregister()
	metrics.Unregister()
}

func TestSourceMetricsNilSafety(t *testing.T) {
	var metrics *SourceMetrics
	metrics.IncReceived()
	metrics.IncEmitted("T")
	metrics.IncDropped()
	metrics.IncDecodeFailure()
	metrics.IncAutoAckFailure()
	metrics.IncAck(ackOutcomeComplete, true)
}

func TestSourceMetricsCountsPipelineEvents(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSourceMetrics(registry)
	if err := metrics.Register(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wanted := newFakeEnvelope("T", nil)
	unwanted := newFakeEnvelope("Unwanted", nil)
	src, err := NewSource(
		newScriptedReceiver(ReceivePeekLock, unwanted, wanted),
		[]Decoder{sequentialDecoder("T")},
		WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	sub, err := src.Messages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sub.Close()

	if got := collectMessages(sub, 1, 2*time.Second); len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}

	if got := testutil.ToFloat64(metrics.envelopesDropped); got != 1 {
		t.Fatalf("expected 1 dropped envelope, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.messagesEmitted.WithLabelValues("T")); got != 1 {
		t.Fatalf("expected 1 emitted message, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.envelopesReceived); got != 2 {
		t.Fatalf("expected 2 received envelopes, got %v", got)
	}
}

func TestCountingAckProviderRecordsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSourceMetrics(registry)
	if err := metrics.Register(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	provider := &countingAckProvider{
		inner:   NewSettlerAckProvider(ReceivePeekLock),
		metrics: metrics,
	}
	env := newFakeEnvelope("T", nil)

	ack := provider.AckFor(env)
	if err := ack.Complete(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := testutil.ToFloat64(metrics.acksTotal.WithLabelValues(ackOutcomeComplete, "ok")); got != 1 {
		t.Fatalf("expected 1 successful completion, got %v", got)
	}
}

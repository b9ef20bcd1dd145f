package runtime

import (
	"context"

	errspkg "github.com/drblury/pullflow/internal/runtime/errors"
)

// settlerAckProvider is the default AckProvider: it passes straight through
// to the envelope's own broker-side settlement primitive.
type settlerAckProvider struct {
	mode ReceiveMode
}

// NewSettlerAckProvider returns the default provider for the given receive
// mode. Under ReceiveAndDelete every produced handle fails with
// ErrManualAckUnsupported, because the broker already deleted the envelope.
func NewSettlerAckProvider(mode ReceiveMode) AckProvider {
	return &settlerAckProvider{mode: mode}
}

func (p *settlerAckProvider) AckFor(env Envelope) Acknowledgment {
	if p.mode == ReceiveAndDelete {
		return deniedAck{err: errspkg.ErrManualAckUnsupported}
	}
	settler, ok := env.(Settler)
	if !ok {
		return deniedAck{err: errspkg.ErrNotSettleable}
	}
	return &settlementAck{settler: settler}
}

// settlementAck binds settlement to the one envelope it was created for. Two
// handles from two envelopes never share state, even when the decoded values
// are equal.
type settlementAck struct {
	settler Settler
}

func (a *settlementAck) Complete(ctx context.Context) error {
	return a.settler.Complete(ctx)
}

func (a *settlementAck) Abandon(ctx context.Context) error {
	return a.settler.Abandon(ctx)
}

// deniedAck is handed out when settlement is impossible; both operations
// fail with the same configuration error.
type deniedAck struct {
	err error
}

func (a deniedAck) Complete(context.Context) error { return a.err }
func (a deniedAck) Abandon(context.Context) error  { return a.err }

// countingAckProvider decorates another provider so settlement outcomes show
// up in SourceMetrics.
type countingAckProvider struct {
	inner   AckProvider
	metrics *SourceMetrics
}

func (p *countingAckProvider) AckFor(env Envelope) Acknowledgment {
	return &countingAck{inner: p.inner.AckFor(env), metrics: p.metrics}
}

type countingAck struct {
	inner   Acknowledgment
	metrics *SourceMetrics
}

func (a *countingAck) Complete(ctx context.Context) error {
	err := a.inner.Complete(ctx)
	a.metrics.IncAck(ackOutcomeComplete, err == nil)
	return err
}

func (a *countingAck) Abandon(ctx context.Context) error {
	err := a.inner.Abandon(ctx)
	a.metrics.IncAck(ackOutcomeAbandon, err == nil)
	return err
}

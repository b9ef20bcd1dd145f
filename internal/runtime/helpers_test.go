package runtime

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	metadatapkg "github.com/drblury/pullflow/internal/runtime/metadata"
)

// fakeEnvelope is a settleable broker envelope that records settlement calls.
type fakeEnvelope struct {
	props   metadatapkg.Metadata
	payload []byte

	mu        sync.Mutex
	completed int
	abandoned int
	settleErr error
}

func newFakeEnvelope(typeTag string, payload []byte) *fakeEnvelope {
	props := metadatapkg.Metadata{}
	if typeTag != "" {
		props[TypeTagProperty] = typeTag
	}
	return &fakeEnvelope{props: props, payload: payload}
}

func (e *fakeEnvelope) Properties() metadatapkg.Metadata { return e.props }
func (e *fakeEnvelope) Payload() []byte                  { return e.payload }

func (e *fakeEnvelope) Complete(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settleErr != nil {
		return e.settleErr
	}
	e.completed++
	return nil
}

func (e *fakeEnvelope) Abandon(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settleErr != nil {
		return e.settleErr
	}
	e.abandoned++
	return nil
}

func (e *fakeEnvelope) completions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completed
}

func (e *fakeEnvelope) abandonments() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.abandoned
}

// plainEnvelope has no settlement support at all.
type plainEnvelope struct {
	props   metadatapkg.Metadata
	payload []byte
}

func (e *plainEnvelope) Properties() metadatapkg.Metadata { return e.props }
func (e *plainEnvelope) Payload() []byte                  { return e.payload }

// scriptedReceiver hands out a fixed sequence of envelopes, then either
// returns a scripted error or keeps timing out like an idle broker.
type scriptedReceiver struct {
	mode     ReceiveMode
	errAfter error

	mu       sync.Mutex
	queue    []Envelope
	receives int
	closed   bool
}

func newScriptedReceiver(mode ReceiveMode, envelopes ...Envelope) *scriptedReceiver {
	return &scriptedReceiver{mode: mode, queue: envelopes}
}

func (r *scriptedReceiver) Mode() ReceiveMode { return r.mode }

func (r *scriptedReceiver) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

func (r *scriptedReceiver) ReceiveNext(ctx context.Context, timeout time.Duration) (Envelope, error) {
	r.mu.Lock()
	r.receives++
	if len(r.queue) > 0 {
		env := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return env, nil
	}
	err := r.errAfter
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}

	// Idle broker: simulate a short receive timeout.
	wait := 5 * time.Millisecond
	if timeout > 0 && timeout < wait {
		wait = timeout
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
		return nil, nil
	}
}

func (r *scriptedReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *scriptedReceiver) receiveCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.receives
}

// stubDecoder decodes through a supplied function.
type stubDecoder struct {
	tag string
	fn  func(payload []byte) (any, error)
}

func (d *stubDecoder) TypeTag() string { return d.tag }

func (d *stubDecoder) Decode(payload []byte) (any, error) {
	if d.fn == nil {
		return string(payload), nil
	}
	return d.fn(payload)
}

// testEvent is a plain decoded value without acknowledgment support.
type testEvent struct {
	ID int
}

// ackableEvent exposes the acknowledgment capability.
type ackableEvent struct {
	ID int

	mu  sync.Mutex
	ack Acknowledgment
}

func (e *ackableEvent) AttachAck(ack Acknowledgment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ack = ack
}

func (e *ackableEvent) acknowledgment() Acknowledgment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ack
}

// recordingAck counts handle invocations for the provider tests.
type recordingAck struct {
	mu        sync.Mutex
	completed int
	abandoned int
}

func (a *recordingAck) Complete(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completed++
	return nil
}

func (a *recordingAck) Abandon(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.abandoned++
	return nil
}

func (a *recordingAck) completions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.completed
}

// mappedAckProvider returns a pre-provisioned handle per envelope, standing
// in for the broker's peek-lock control.
type mappedAckProvider struct {
	handles map[Envelope]Acknowledgment
}

func (p *mappedAckProvider) AckFor(env Envelope) Acknowledgment {
	return p.handles[env]
}

// captureTracer records the context each span is started from. Spans
// themselves are no-ops.
type captureTracer struct {
	embedded.Tracer

	mu       sync.Mutex
	startCtx []context.Context
}

func (t *captureTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.mu.Lock()
	t.startCtx = append(t.startCtx, ctx)
	t.mu.Unlock()
	return noop.NewTracerProvider().Tracer("").Start(ctx, name)
}

func (t *captureTracer) startContexts() []context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]context.Context(nil), t.startCtx...)
}

// captureTracerProvider hands out one shared captureTracer.
type captureTracerProvider struct {
	embedded.TracerProvider

	tracer *captureTracer
}

func (p *captureTracerProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return p.tracer
}

func collectMessages(sub *Subscription, want int, timeout time.Duration) []any {
	collected := make([]any, 0, want)
	deadline := time.After(timeout)
	for len(collected) < want {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return collected
			}
			collected = append(collected, msg)
		case <-deadline:
			return collected
		}
	}
	return collected
}

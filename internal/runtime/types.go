package runtime

import (
	"context"
	"time"

	metadatapkg "github.com/drblury/pullflow/internal/runtime/metadata"
)

// TypeTagProperty is the well-known envelope property identifying which
// decoder applies to a payload. Override per Source with WithTypeTagProperty.
const TypeTagProperty = "pullflow_message_type"

// ReceiveMode selects how a Receiver hands envelopes over to the consumer.
type ReceiveMode int

const (
	// ReceivePeekLock holds every received envelope under a broker-side lock
	// until it is explicitly completed or abandoned.
	ReceivePeekLock ReceiveMode = iota

	// ReceiveAndDelete removes envelopes from the broker as they are
	// received. Settlement is not available in this mode.
	ReceiveAndDelete
)

func (m ReceiveMode) String() string {
	switch m {
	case ReceivePeekLock:
		return "peeklock"
	case ReceiveAndDelete:
		return "receiveanddelete"
	default:
		return "unknown"
	}
}

// Envelope is one unit of broker-delivered data: a string-keyed property bag
// plus an opaque payload. The broker client owns it until it is settled or
// its lock expires; pullflow only reads properties and payload.
type Envelope interface {
	Properties() metadatapkg.Metadata
	Payload() []byte
}

// Settler is implemented by envelopes from peek-lock receivers. It is the
// broker's per-envelope lock-confirmation primitive that acknowledgment
// handles bind to.
type Settler interface {
	// Complete accepts the envelope and removes it from the broker.
	Complete(ctx context.Context) error
	// Abandon returns the envelope to the broker for redelivery.
	Abandon(ctx context.Context) error
}

// Receiver is the broker's pull-style receive primitive. The receive loop
// owns the handle exclusively for its lifetime; nothing else may call
// ReceiveNext on it concurrently.
type Receiver interface {
	Mode() ReceiveMode
	IsOpen() bool

	// ReceiveNext blocks until an envelope arrives, the timeout elapses, or
	// ctx is cancelled. A (nil, nil) return means the wait timed out with no
	// message and the caller should keep looping.
	ReceiveNext(ctx context.Context, timeout time.Duration) (Envelope, error)

	Close() error
}

// Decoder turns an envelope payload into one domain message variant. TypeTag
// declares which envelopes it handles.
type Decoder interface {
	TypeTag() string
	Decode(payload []byte) (any, error)
}

// Acknowledgment is bound 1:1 to exactly one envelope and exposes the two
// settlement outcomes. Calling either after the envelope's lock expired
// surfaces the broker's error.
type Acknowledgment interface {
	Complete(ctx context.Context) error
	Abandon(ctx context.Context) error
}

// Ackable is the optional capability a decoded domain message implements to
// receive the acknowledgment handle for its originating envelope. The check
// happens once, at decode time.
type Ackable interface {
	AttachAck(ack Acknowledgment)
}

// AckProvider produces an Acknowledgment bound to the given envelope.
// Pluggable so tests can substitute a fake.
type AckProvider interface {
	AckFor(env Envelope) Acknowledgment
}

// typeTagOf reads the type tag from the envelope's property bag. ok reports
// whether the property is present at all.
func typeTagOf(env Envelope, key string) (string, bool) {
	props := env.Properties()
	if !props.Has(key) {
		return "", false
	}
	return props.Get(key), true
}

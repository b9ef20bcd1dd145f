package runtime

import (
	"context"
	"sync"
	"time"

	errspkg "github.com/drblury/pullflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/pullflow/internal/runtime/logging"
)

// envelopeBroadcaster turns the receiver's pull primitive into a shared hot
// stream. At most one receive goroutine runs per broadcaster: it starts on
// the 0→1 subscriber transition and is cancelled on 1→0, both atomic under
// mu. Many brokers treat a receive handle read from two places as invalid
// usage, so the loop is the only caller of ReceiveNext.
type envelopeBroadcaster struct {
	receiver Receiver
	timeout  time.Duration
	log      loggingpkg.ServiceLogger
	metrics  *SourceMetrics

	mu     sync.Mutex
	subs   map[*envelopeSubscription]struct{}
	cancel context.CancelFunc
	closed bool
}

// envelopeSubscription is one attachment to the shared stream. The loop is
// the only sender on ch and the only closer of it; errCh carries at most one
// terminal error, published before ch closes.
type envelopeSubscription struct {
	ch    chan Envelope
	errCh chan error
	done  chan struct{}
}

func newEnvelopeBroadcaster(receiver Receiver, timeout time.Duration, log loggingpkg.ServiceLogger, metrics *SourceMetrics) *envelopeBroadcaster {
	return &envelopeBroadcaster{
		receiver: receiver,
		timeout:  timeout,
		log:      log,
		metrics:  metrics,
		subs:     make(map[*envelopeSubscription]struct{}),
	}
}

func (b *envelopeBroadcaster) subscribe() (*envelopeSubscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errspkg.ErrSourceClosed
	}

	sub := &envelopeSubscription{
		ch:    make(chan Envelope),
		errCh: make(chan error, 1),
		done:  make(chan struct{}),
	}
	b.subs[sub] = struct{}{}

	if len(b.subs) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		b.cancel = cancel
		go b.run(ctx)
	}

	return sub, nil
}

func (b *envelopeBroadcaster) unsubscribe(sub *envelopeSubscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, sub)
	close(sub.done)

	var cancel context.CancelFunc
	if len(b.subs) == 0 && b.cancel != nil {
		cancel = b.cancel
		b.cancel = nil
	}
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// close marks the broadcaster disposed and cancels a running loop.
// Idempotent.
func (b *envelopeBroadcaster) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// run is the single receive loop. It exits on cancellation, on the receiver
// reporting itself closed, or on a receive error; a nil envelope (timed-out
// wait) keeps it looping.
func (b *envelopeBroadcaster) run(ctx context.Context) {
	b.log.Debug("receive loop started", nil)

	for {
		if ctx.Err() != nil {
			b.finish(nil)
			return
		}
		if !b.receiver.IsOpen() {
			b.log.Debug("receiver closed, ending receive loop", nil)
			b.finish(nil)
			return
		}

		env, err := b.receiver.ReceiveNext(ctx, b.timeout)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation surfaced through the receive call.
				b.finish(nil)
				return
			}
			b.log.Error("broker receive failed, ending receive loop", err, nil)
			b.finish(err)
			return
		}
		if env == nil {
			// Timed out with no message: keep looping.
			continue
		}

		b.metrics.IncReceived()
		b.deliver(ctx, env)
	}
}

// deliver fans one envelope out to every subscriber attached at receive
// time. Per-subscriber ordering matches receive order; a subscriber that
// detaches mid-delivery is skipped.
func (b *envelopeBroadcaster) deliver(ctx context.Context, env Envelope) {
	for _, sub := range b.snapshot() {
		select {
		case sub.ch <- env:
		case <-sub.done:
		case <-ctx.Done():
			return
		}
	}
}

// finish detaches every remaining subscriber and hands each its terminal
// signal: err for a broker failure, nil for an intentional close. Detaching
// them resets the reference count so a later subscribe starts a fresh loop.
func (b *envelopeBroadcaster) finish(err error) {
	b.mu.Lock()
	remaining := make([]*envelopeSubscription, 0, len(b.subs))
	for sub := range b.subs {
		remaining = append(remaining, sub)
	}
	b.subs = make(map[*envelopeSubscription]struct{})
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	for _, sub := range remaining {
		if err != nil {
			sub.errCh <- err
		}
		close(sub.ch)
	}
}

func (b *envelopeBroadcaster) snapshot() []*envelopeSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := make([]*envelopeSubscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	return subs
}

// subscriberCount is used by tests to observe the reference count.
func (b *envelopeBroadcaster) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

package runtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ackOutcomeComplete = "complete"
	ackOutcomeAbandon  = "abandon"
)

// SourceMetrics tracks receive, decode, and acknowledgment statistics for a
// Source. All increment methods are nil-safe so an unconfigured Source pays
// nothing.
type SourceMetrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	envelopesReceived prometheus.Counter
	messagesEmitted   *prometheus.CounterVec
	envelopesDropped  prometheus.Counter
	decodeFailures    prometheus.Counter
	autoAckFailures   prometheus.Counter
	acksTotal         *prometheus.CounterVec
}

func newSourceCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pullflow",
		Subsystem: "source",
		Name:      name,
		Help:      help,
	})
}

func newSourceCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pullflow",
		Subsystem: "source",
		Name:      name,
		Help:      help,
	}, labels)
}

// NewSourceMetrics creates a metrics collector. A nil registerer falls back
// to the Prometheus default registerer.
func NewSourceMetrics(registerer prometheus.Registerer) *SourceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SourceMetrics{
		registerer:        registerer,
		envelopesReceived: newSourceCounter("envelopes_received_total", "Total number of raw envelopes received from the broker"),
		messagesEmitted:   newSourceCounterVec("messages_emitted_total", "Total number of decoded domain messages emitted to subscribers", []string{"message_type"}),
		envelopesDropped:  newSourceCounter("envelopes_dropped_total", "Total number of envelopes dropped because no decoder matched their type tag"),
		decodeFailures:    newSourceCounter("decode_failures_total", "Total number of envelopes that failed decoding or type routing"),
		autoAckFailures:   newSourceCounter("autoack_failures_total", "Total number of fire-and-forget auto-acknowledgments that failed"),
		acksTotal:         newSourceCounterVec("acks_total", "Total number of settlement attempts by outcome", []string{"outcome", "result"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *SourceMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.envelopesReceived,
		m.messagesEmitted,
		m.envelopesDropped,
		m.decodeFailures,
		m.autoAckFailures,
		m.acksTotal,
	}
	for _, collector := range collectors {
		if err := m.registerer.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// Unregister removes the collectors from the registerer.
func (m *SourceMetrics) Unregister() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registered {
		return
	}

	m.registerer.Unregister(m.envelopesReceived)
	m.registerer.Unregister(m.messagesEmitted)
	m.registerer.Unregister(m.envelopesDropped)
	m.registerer.Unregister(m.decodeFailures)
	m.registerer.Unregister(m.autoAckFailures)
	m.registerer.Unregister(m.acksTotal)
	m.registered = false
}

func (m *SourceMetrics) IncReceived() {
	if m == nil {
		return
	}
	m.envelopesReceived.Inc()
}

func (m *SourceMetrics) IncEmitted(messageType string) {
	if m == nil {
		return
	}
	m.messagesEmitted.WithLabelValues(messageType).Inc()
}

func (m *SourceMetrics) IncDropped() {
	if m == nil {
		return
	}
	m.envelopesDropped.Inc()
}

func (m *SourceMetrics) IncDecodeFailure() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

func (m *SourceMetrics) IncAutoAckFailure() {
	if m == nil {
		return
	}
	m.autoAckFailures.Inc()
}

func (m *SourceMetrics) IncAck(outcome string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.acksTotal.WithLabelValues(outcome, result).Inc()
}

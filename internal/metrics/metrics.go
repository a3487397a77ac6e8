// Package metrics holds the Prometheus collectors for the stdio server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dhan_mcp"

// Metrics groups the server collectors.
type Metrics struct {
	messages     *prometheus.CounterVec
	frameErrors  prometheus.Counter
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	inflight     prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Inbound JSON-RPC messages by type.",
			},
			[]string{"type"},
		),
		frameErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frame_errors_total",
				Help:      "Frames discarded because they could not be decoded.",
			},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool invocations by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool invocation duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		inflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inflight",
				Help:      "Messages currently being dispatched.",
			},
		),
	}
	for _, c := range []prometheus.Collector{m.messages, m.frameErrors, m.toolCalls, m.toolDuration, m.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordMessage counts one inbound message of the given type.
func (m *Metrics) RecordMessage(typ string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(typ).Inc()
}

// RecordFrameError counts one frame the codec could not decode.
func (m *Metrics) RecordFrameError() {
	if m == nil {
		return
	}
	m.frameErrors.Inc()
}

// RecordToolCall counts one tool invocation and observes its duration.
func (m *Metrics) RecordToolCall(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// AddInflight adjusts the in-flight gauge by delta.
func (m *Metrics) AddInflight(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}

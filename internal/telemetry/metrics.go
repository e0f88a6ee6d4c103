package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/swapflow/internal/observability"
)

// Metrics bridges the observability.Metrics interface onto an OpenTelemetry
// meter. Instruments are created on first use and cached by name.
type Metrics struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

var _ observability.Metrics = (*Metrics)(nil)

// NewMetrics constructs the bridge over the provider's meter.
func NewMetrics(p *Provider) *Metrics {
	m := new(Metrics)
	m.meter = p.Meter()
	m.counters = make(map[string]metric.Float64Counter)
	m.histograms = make(map[string]metric.Float64Histogram)
	m.gauges = make(map[string]metric.Float64Gauge)
	return m
}

// IncCounter adds delta to the named counter.
func (m *Metrics) IncCounter(name string, delta float64, labels map[string]string) {
	m.mu.Lock()
	counter, ok := m.counters[name]
	if !ok {
		created, err := m.meter.Float64Counter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		counter = created
		m.counters[name] = counter
	}
	m.mu.Unlock()
	counter.Add(context.Background(), delta, metric.WithAttributes(attrs(labels)...))
}

// ObserveHistogram records value into the named histogram.
func (m *Metrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	hist, ok := m.histograms[name]
	if !ok {
		created, err := m.meter.Float64Histogram(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		hist = created
		m.histograms[name] = hist
	}
	m.mu.Unlock()
	hist.Record(context.Background(), value, metric.WithAttributes(attrs(labels)...))
}

// SetGauge records the current value of the named gauge.
func (m *Metrics) SetGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	gauge, ok := m.gauges[name]
	if !ok {
		created, err := m.meter.Float64Gauge(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		gauge = created
		m.gauges[name] = gauge
	}
	m.mu.Unlock()
	gauge.Record(context.Background(), value, metric.WithAttributes(attrs(labels)...))
}

func attrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		out = append(out, attribute.String(k, v))
	}
	return out
}

package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nextlevelbuilder/wireclient/internal/connection"
)

// OTelSink adapts the module's MetricsSink contract onto an
// OpenTelemetry Meter. The caller owns the Meter Provider (and whatever
// OTLP exporter it's wired to); this sink only creates instruments and
// records against them.
type OTelSink struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

var _ connection.MetricsSink = (*OTelSink)(nil)

// NewOTelSink creates an OTelSink backed by meter. Instruments are created
// lazily, on first use of a given metric name.
func NewOTelSink(meter metric.Meter) *OTelSink {
	return &OTelSink{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

func (s *OTelSink) Counter(name string, value float64, tags map[string]string) {
	c, err := s.counterFor(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(toAttributes(tags)...))
}

func (s *OTelSink) Gauge(name string, value float64) {
	g, err := s.gaugeFor(name)
	if err != nil {
		return
	}
	g.Record(context.Background(), value)
}

func (s *OTelSink) Histogram(name string, valueMS float64, tags map[string]string) {
	h, err := s.histogramFor(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), valueMS, metric.WithAttributes(toAttributes(tags)...))
}

func (s *OTelSink) counterFor(name string) (metric.Float64Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c, nil
	}
	c, err := s.meter.Float64Counter(name)
	if err != nil {
		return nil, err
	}
	s.counters[name] = c
	return c, nil
}

func (s *OTelSink) gaugeFor(name string) (metric.Float64Gauge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gauges[name]; ok {
		return g, nil
	}
	g, err := s.meter.Float64Gauge(name)
	if err != nil {
		return nil, err
	}
	s.gauges[name] = g
	return g, nil
}

func (s *OTelSink) histogramFor(name string) (metric.Float64Histogram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histograms[name]; ok {
		return h, nil
	}
	h, err := s.meter.Float64Histogram(name, metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	s.histograms[name] = h
	return h, nil
}

func toAttributes(tags map[string]string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

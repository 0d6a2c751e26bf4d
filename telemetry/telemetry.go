// Package telemetry provides MetricsSink implementations for the
// Connection Manager: a no-op default, and an OpenTelemetry-backed sink
// for callers who already run a Meter Provider and want the module's
// counters, gauges, and histograms exported through it.
package telemetry

import "github.com/nextlevelbuilder/wireclient/internal/connection"

// NoopSink discards every metric. It's the module's default when no
// MetricsSink is configured, so instrumentation calls never need a nil
// check at the call site.
type NoopSink struct{}

var _ connection.MetricsSink = NoopSink{}

func (NoopSink) Counter(string, float64, map[string]string)   {}
func (NoopSink) Gauge(string, float64)                        {}
func (NoopSink) Histogram(string, float64, map[string]string) {}

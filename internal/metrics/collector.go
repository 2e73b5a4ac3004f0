// Package metrics collects latency, throughput and error aggregates for
// the realtime core. The collector is diagnostic only: nothing in the hot
// path is gated on it, and it never blocks a broadcast.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Instrument calls take a context for exemplars; the collector has none.
var noCtx = context.Background()

// Timer is a handle for one in-flight latency measurement.
type Timer struct {
	start time.Time
}

// Snapshot holds process-wide running aggregates. Reset only explicitly.
type Snapshot struct {
	TotalMessages  int64
	ErrorCount     int64
	AverageLatency time.Duration
}

// Collector aggregates message counts, latencies and errors. Counters are
// atomic; the latency sum takes a short mutex. Measurements are mirrored
// into OpenTelemetry instruments, which stay no-ops unless the host
// installs a meter provider.
type Collector struct {
	totalMessages atomic.Int64
	errorCount    atomic.Int64

	mu           sync.Mutex
	latencySum   time.Duration
	latencyCount int64

	otelMessages otelmetric.Int64Counter
	otelErrors   otelmetric.Int64Counter
	otelLatency  otelmetric.Float64Histogram
}

// NewCollector creates a metrics collector.
func NewCollector() *Collector {
	meter := otel.Meter("github.com/cueroom/realtime")

	messages, _ := meter.Int64Counter("realtime_messages_total",
		otelmetric.WithDescription("Total messages observed by the core"))
	errors, _ := meter.Int64Counter("realtime_errors_total",
		otelmetric.WithDescription("Total errors observed by the core"))
	latency, _ := meter.Float64Histogram("realtime_message_latency_seconds",
		otelmetric.WithDescription("Per-message handling latency"))

	return &Collector{
		otelMessages: messages,
		otelErrors:   errors,
		otelLatency:  latency,
	}
}

// StartTimer begins a wall-clock latency measurement.
func (c *Collector) StartTimer() Timer {
	return Timer{start: time.Now()}
}

// EndTimer finishes the measurement, folds it into the aggregates as one
// message, and returns the latency in milliseconds.
func (c *Collector) EndTimer(t Timer) float64 {
	elapsed := time.Since(t.start)

	c.totalMessages.Add(1)
	c.mu.Lock()
	c.latencySum += elapsed
	c.latencyCount++
	c.mu.Unlock()

	if c.otelMessages != nil {
		c.otelMessages.Add(noCtx, 1)
		c.otelLatency.Record(noCtx, elapsed.Seconds())
	}

	return float64(elapsed) / float64(time.Millisecond)
}

// RecordError counts one error.
func (c *Collector) RecordError() {
	c.errorCount.Add(1)
	if c.otelErrors != nil {
		c.otelErrors.Add(noCtx, 1)
	}
}

// Throughput returns messages per second for count messages since the
// timer started. Returns 0 for a zero elapsed interval.
func (c *Collector) Throughput(count int64, t Timer) float64 {
	elapsed := time.Since(t.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(count) / elapsed
}

// Metrics returns the current aggregates.
func (c *Collector) Metrics() Snapshot {
	c.mu.Lock()
	sum := c.latencySum
	n := c.latencyCount
	c.mu.Unlock()

	var avg time.Duration
	if n > 0 {
		avg = sum / time.Duration(n)
	}

	return Snapshot{
		TotalMessages:  c.totalMessages.Load(),
		ErrorCount:     c.errorCount.Load(),
		AverageLatency: avg,
	}
}

// Reset clears all aggregates.
func (c *Collector) Reset() {
	c.totalMessages.Store(0)
	c.errorCount.Store(0)
	c.mu.Lock()
	c.latencySum = 0
	c.latencyCount = 0
	c.mu.Unlock()
}

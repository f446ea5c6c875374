package meridian

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the request-latency histogram buckets in
// nanoseconds, log-spaced from 1us to 10s — the shape of a latency
// histogram doesn't depend on whether the operation it measures is a block
// I/O or a SendReceive round trip.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks runtime-wide operational counters: requests dispatched
// through stages, client SendReceive round trips, and back-pressure
// events — a Message is this module's unit of work, in place of a
// block-layer read/write/discard/flush.
type Metrics struct {
	RequestsHandled  atomic.Uint64
	RequestsRejected atomic.Uint64 // Send/SendPriority returned false
	ResponsesSent    atomic.Uint64

	ClientRequests atomic.Uint64
	ClientTimeouts atomic.Uint64
	ClientErrors   atomic.Uint64

	ReconnectAttempts atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance, stamping StartTime.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRequestLatency records one completed request's latency and updates
// the histogram buckets.
func (m *Metrics) RecordRequestLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the runtime as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics suitable
// for logging or exposing over an admin endpoint.
type MetricsSnapshot struct {
	RequestsHandled   uint64
	RequestsRejected  uint64
	ResponsesSent     uint64
	ClientRequests    uint64
	ClientTimeouts    uint64
	ClientErrors      uint64
	ReconnectAttempts uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps  uint64
	ErrorRate float64
}

// Snapshot takes a consistent-enough (not a synchronization point, like
// Sequencer.Size) point-in-time copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		RequestsHandled:   m.RequestsHandled.Load(),
		RequestsRejected:  m.RequestsRejected.Load(),
		ResponsesSent:     m.ResponsesSent.Load(),
		ClientRequests:    m.ClientRequests.Load(),
		ClientTimeouts:    m.ClientTimeouts.Load(),
		ClientErrors:      m.ClientErrors.Load(),
		ReconnectAttempts: m.ReconnectAttempts.Load(),
	}
	for i := range m.LatencyBuckets {
		s.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		s.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}
	s.TotalOps = s.RequestsHandled + s.ClientRequests
	if s.TotalOps > 0 {
		s.ErrorRate = 100 * float64(s.RequestsRejected+s.ClientErrors) / float64(s.TotalOps)
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop == 0 {
		s.UptimeNs = uint64(time.Now().UnixNano() - start)
	} else {
		s.UptimeNs = uint64(stop - start)
	}
	return s
}

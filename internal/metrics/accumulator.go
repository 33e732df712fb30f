package metrics

import (
	"sync/atomic"
	"time"
)

// Accumulator holds request counters. Each mutation is a single atomic
// operation, so concurrent callers never observe torn updates.
type Accumulator struct {
	now func() time.Time

	requestCount      atomic.Int64
	errorCount        atomic.Int64
	totalResponseTime atomic.Int64 // nanoseconds
	startTime         atomic.Int64 // unix nanoseconds
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	RequestCount          int64
	ErrorCount            int64
	TotalResponseTime     time.Duration
	AverageResponseTimeMs float64
	StartTime             time.Time
	Uptime                time.Duration
}

// NewAccumulator creates an accumulator whose uptime clock starts now.
func NewAccumulator(now func() time.Time) *Accumulator {
	if now == nil {
		now = time.Now
	}
	a := &Accumulator{now: now}
	a.startTime.Store(now().UnixNano())
	return a
}

// IncrementRequestCount counts one request.
func (a *Accumulator) IncrementRequestCount() {
	a.requestCount.Add(1)
}

// IncrementErrorCount counts one failed request.
func (a *Accumulator) IncrementErrorCount() {
	a.errorCount.Add(1)
}

// RecordResponseTime adds d to the total response time.
func (a *Accumulator) RecordResponseTime(d time.Duration) {
	if d < 0 {
		return
	}
	a.totalResponseTime.Add(int64(d))
}

// Reset zeroes the counters and restarts the uptime clock.
func (a *Accumulator) Reset() {
	a.requestCount.Store(0)
	a.errorCount.Store(0)
	a.totalResponseTime.Store(0)
	a.startTime.Store(a.now().UnixNano())
}

// Snapshot returns the current counters.
func (a *Accumulator) Snapshot() Snapshot {
	requests := a.requestCount.Load()
	total := time.Duration(a.totalResponseTime.Load())
	start := time.Unix(0, a.startTime.Load())

	var avg float64
	if requests > 0 {
		avg = float64(total) / float64(time.Millisecond) / float64(requests)
	}

	return Snapshot{
		RequestCount:          requests,
		ErrorCount:            a.errorCount.Load(),
		TotalResponseTime:     total,
		AverageResponseTimeMs: avg,
		StartTime:             start,
		Uptime:                a.now().Sub(start),
	}
}

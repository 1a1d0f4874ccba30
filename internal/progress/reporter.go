// Package progress provides a throttled wrapper around the job runner's
// progress sink, so hot loops can report freely without flooding it.
package progress

import (
	"sync"
	"time"

	"github.com/avellar/conviction/internal/domain"
)

// defaultMinInterval throttles to max 10 reports/second.
const defaultMinInterval = 100 * time.Millisecond

// Reporter forwards progress to an underlying sink, dropping reports that
// arrive faster than the minimum interval. Completion (processed == total)
// always bypasses the throttle.
type Reporter struct {
	mu          sync.Mutex
	sink        domain.ProgressSink
	lastReport  time.Time
	minInterval time.Duration
}

// NewReporter wraps a sink with the default throttle. A nil sink yields a
// reporter that silently discards everything.
func NewReporter(sink domain.ProgressSink) *Reporter {
	return &Reporter{
		sink:        sink,
		minInterval: defaultMinInterval,
	}
}

// NewReporterWithInterval wraps a sink with a custom throttle interval.
func NewReporterWithInterval(sink domain.ProgressSink, minInterval time.Duration) *Reporter {
	return &Reporter{
		sink:        sink,
		minInterval: minInterval,
	}
}

// Report forwards one progress update unless throttled.
func (r *Reporter) Report(percent int, message string, processed, total int) {
	if r.sink == nil {
		return
	}

	r.mu.Lock()
	now := time.Now()
	if now.Sub(r.lastReport) < r.minInterval && processed != total {
		r.mu.Unlock()
		return
	}
	r.lastReport = now
	r.mu.Unlock()

	r.sink.Report(percent, message, processed, total)
}

package pipeline

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

const latencyWindowSize = 256

// Stats is a snapshot of a pipeline's progress.
type Stats struct {
	FramesRead      uint64
	FramesProcessed uint64
	FramesWritten   uint64
	FramesDropped   uint64
	Detections      uint64
	ReadErrors      uint64
	DetectFailures  uint64
	SinkFailures    uint64

	QueueDepth    int
	MaxQueueDepth int

	// Detect latencies are computed over the most recent successful detections.
	DetectLatencyMean time.Duration
	DetectLatencyP50  time.Duration
	DetectLatencyP95  time.Duration
}

// keysAndValues renders the stats as logger fields.
func (s Stats) keysAndValues() []interface{} {
	return []interface{}{
		"read", s.FramesRead,
		"processed", s.FramesProcessed,
		"written", s.FramesWritten,
		"dropped", s.FramesDropped,
		"detections", s.Detections,
		"read_errors", s.ReadErrors,
		"detect_failures", s.DetectFailures,
		"sink_failures", s.SinkFailures,
		"queue_depth", s.QueueDepth,
		"max_queue_depth", s.MaxQueueDepth,
		"detect_mean", s.DetectLatencyMean,
		"detect_p50", s.DetectLatencyP50,
		"detect_p95", s.DetectLatencyP95,
	}
}

// latencyWindow keeps the last latencyWindowSize samples, in milliseconds.
type latencyWindow struct {
	mu      sync.Mutex
	samples []float64
	next    int
}

func newLatencyWindow() *latencyWindow {
	return &latencyWindow{samples: make([]float64, 0, latencyWindowSize)}
}

func (lw *latencyWindow) add(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if len(lw.samples) < latencyWindowSize {
		lw.samples = append(lw.samples, ms)
		return
	}
	lw.samples[lw.next] = ms
	lw.next = (lw.next + 1) % latencyWindowSize
}

// summary returns the mean, median and 95th percentile. All are zero when there are no samples.
func (lw *latencyWindow) summary() (mean, p50, p95 time.Duration) {
	lw.mu.Lock()
	data := stats.Float64Data(append([]float64(nil), lw.samples...))
	lw.mu.Unlock()
	if data.Len() == 0 {
		return 0, 0, 0
	}

	toDuration := func(ms float64) time.Duration {
		return time.Duration(ms * float64(time.Millisecond))
	}
	if m, err := stats.Mean(data); err == nil {
		mean = toDuration(m)
	}
	if m, err := stats.Percentile(data, 50); err == nil {
		p50 = toDuration(m)
	}
	if m, err := stats.Percentile(data, 95); err == nil {
		p95 = toDuration(m)
	}
	return mean, p50, p95
}

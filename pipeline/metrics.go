package pipeline

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's counters. They are exported to Prometheus from a private registry.
type Metrics struct {
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesWritten   atomic.Uint64
	FramesDropped   atomic.Uint64
	Detections      atomic.Uint64

	ReadErrors     atomic.Uint64
	DetectFailures atomic.Uint64
	SinkFailures   atomic.Uint64

	QueueDepth atomic.Int64

	detectLatency prometheus.Histogram
	registry      *prometheus.Registry
}

// NewMetrics creates a Metrics with its Prometheus collectors registered.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detectLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "videodetect_detect_latency_seconds",
			Help:    "Time spent detecting objects in one frame",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	m.counter("videodetect_frames_read_total", "Total frames read from the capture source", &m.FramesRead)
	m.counter("videodetect_frames_processed_total", "Total frames that went through detection successfully", &m.FramesProcessed)
	m.counter("videodetect_frames_written_total", "Total frames written to the sink", &m.FramesWritten)
	m.counter("videodetect_frames_dropped_total", "Total frames dropped because the queue was full", &m.FramesDropped)
	m.counter("videodetect_detections_total", "Total detections after suppression and filtering", &m.Detections)
	m.counter("videodetect_read_errors_total", "Total capture read errors", &m.ReadErrors)
	m.counter("videodetect_detect_failures_total", "Total frames whose detection failed", &m.DetectFailures)
	m.counter("videodetect_sink_failures_total", "Total frames the sink failed to write", &m.SinkFailures)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "videodetect_queue_depth",
			Help: "Frames waiting for detection",
		},
		func() float64 { return float64(m.QueueDepth.Load()) },
	))
	m.registry.MustRegister(m.detectLatency)
}

// ObserveDetectLatency records how long one detection took.
func (m *Metrics) ObserveDetectLatency(d time.Duration) {
	m.detectLatency.Observe(d.Seconds())
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RecorderMetrics contains Prometheus metrics for the capture, segmentation and encode stages.
type RecorderMetrics struct {
	framesPushed    prometheus.Counter
	framesDropped   prometheus.Counter
	framesMalformed prometheus.Counter
	queueDepth      prometheus.Gauge

	segments        *prometheus.CounterVec
	segmentDuration prometheus.Histogram
	writeErrors     prometheus.Counter
	collecting      prometheus.Gauge

	encodeJobs     *prometheus.CounterVec
	encodeDuration prometheus.Histogram
	encodePending  prometheus.Gauge

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewRecorderMetrics creates and registers recorder metrics
func NewRecorderMetrics(registry *prometheus.Registry) (*RecorderMetrics, error) {
	m := &RecorderMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recorder metrics: %w", err)
	}
	return m, nil
}

func (m *RecorderMetrics) initMetrics() {
	m.framesPushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voicerec_frames_captured_total",
		Help: "Total number of frames accepted into the frame queue",
	})
	m.framesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voicerec_frames_dropped_total",
		Help: "Total number of frames dropped because the frame queue was full",
	})
	m.framesMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voicerec_frames_malformed_total",
		Help: "Total number of frames rejected for having the wrong size",
	})
	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "voicerec_frame_queue_depth",
		Help: "Frames waiting in the frame queue",
	})

	m.segments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicerec_segments_total",
			Help: "Total number of closed segments",
		},
		[]string{"mode", "outcome"},
	)
	m.segmentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicerec_segment_duration_seconds",
		Help:    "Length of written segments",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
	})
	m.writeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voicerec_segment_write_errors_total",
		Help: "Total number of segment storage failures",
	})
	m.collecting = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "voicerec_segment_open",
		Help: "1 while a segment is being collected",
	})

	m.encodeJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicerec_encode_jobs_total",
			Help: "Total number of finished encode jobs by status",
		},
		[]string{"status"},
	)
	m.encodeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicerec_encode_duration_seconds",
		Help:    "Time taken by one ffmpeg encode",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	})
	m.encodePending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "voicerec_encode_pending_jobs",
		Help: "Encode jobs waiting for a worker",
	})

	m.collectors = []prometheus.Collector{
		m.framesPushed, m.framesDropped, m.framesMalformed, m.queueDepth,
		m.segments, m.segmentDuration, m.writeErrors, m.collecting,
		m.encodeJobs, m.encodeDuration, m.encodePending,
	}
}

// Describe implements the Collector interface
func (m *RecorderMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *RecorderMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// AddFrames records frame queue counter deltas since the last update.
func (m *RecorderMetrics) AddFrames(pushed, dropped, malformed uint64) {
	m.framesPushed.Add(float64(pushed))
	m.framesDropped.Add(float64(dropped))
	m.framesMalformed.Add(float64(malformed))
}

// SetQueueDepth records the current frame queue depth.
func (m *RecorderMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// RecordSegment records a closed segment. Discarded segments carry no duration.
func (m *RecorderMetrics) RecordSegment(mode, outcome string, seconds float64) {
	m.segments.WithLabelValues(mode, outcome).Inc()
	if outcome == LabelKept {
		m.segmentDuration.Observe(seconds)
	}
}

// AddDiscardedSegments records voice segments dropped for being too short.
func (m *RecorderMetrics) AddDiscardedSegments(mode string, n uint64) {
	if n > 0 {
		m.segments.WithLabelValues(mode, LabelDiscarded).Add(float64(n))
	}
}

// RecordWriteError records a segment storage failure.
func (m *RecorderMetrics) RecordWriteError() {
	m.writeErrors.Inc()
}

// SetCollecting records whether a segment is open.
func (m *RecorderMetrics) SetCollecting(open bool) {
	if open {
		m.collecting.Set(1)
	} else {
		m.collecting.Set(0)
	}
}

// RecordEncode records a finished encode job.
func (m *RecorderMetrics) RecordEncode(status string, seconds float64) {
	m.encodeJobs.WithLabelValues(status).Inc()
	if status == LabelSuccess {
		m.encodeDuration.Observe(seconds)
	}
}

// SetEncodePending records the encode backlog.
func (m *RecorderMetrics) SetEncodePending(n int) {
	m.encodePending.Set(float64(n))
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the recorder service.
type Metrics struct {
	registry                *prometheus.Registry
	requestsTotal           prometheus.Counter
	errorsTotal             prometheus.Counter
	requestDuration         prometheus.Histogram
	segmentsRegisteredTotal prometheus.Counter
	streamsEndedTotal       prometheus.Counter
	activeStreams           prometheus.Gauge

	recordingsStartedTotal prometheus.Counter
	recording              prometheus.Gauge
	segmentsEmittedTotal   *prometheus.CounterVec
	segmentBytesTotal      prometheus.Counter
	buffersCapturedTotal   prometheus.Counter
	runtimeErrorsTotal     prometheus.Counter
	peakLevel              prometheus.Gauge
	averageLevel           prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hls_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		segmentsRegisteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_segments_registered_total",
			Help: "Total number of media segments registered in a playlist",
		}),
		streamsEndedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_streams_ended_total",
			Help: "Total number of streams ended",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_active_streams",
			Help: "Number of streams that are not ended",
		}),
		recordingsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorder_recordings_started_total",
			Help: "Total number of recording sessions started",
		}),
		recording: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_recording",
			Help: "1 while a recording session is running",
		}),
		segmentsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_segments_emitted_total",
			Help: "Total number of segments emitted by the muxer, by kind",
		}, []string{"kind"}),
		segmentBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorder_segment_bytes_total",
			Help: "Total number of segment payload bytes emitted",
		}),
		buffersCapturedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorder_buffers_captured_total",
			Help: "Total number of captured audio buffers appended to the muxer",
		}),
		runtimeErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorder_runtime_errors_total",
			Help: "Total number of recording sessions aborted by a buffer path failure",
		}),
		peakLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_peak_hold_level",
			Help: "Last aggregate peak hold level across channels",
		}),
		averageLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_average_power_level",
			Help: "Last aggregate average power level across channels",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.requestDuration,
		m.segmentsRegisteredTotal,
		m.streamsEndedTotal,
		m.activeStreams,
		m.recordingsStartedTotal,
		m.recording,
		m.segmentsEmittedTotal,
		m.segmentBytesTotal,
		m.buffersCapturedTotal,
		m.runtimeErrorsTotal,
		m.peakLevel,
		m.averageLevel,
	)

	return m
}

// ObserveRequest counts one served request. Statuses of 400 and above also
// count as errors.
func (m *Metrics) ObserveRequest(status int, d time.Duration) {
	m.requestsTotal.Inc()
	m.requestDuration.Observe(d.Seconds())
	if status >= http.StatusBadRequest {
		m.errorsTotal.Inc()
	}
}

// IncSegmentsRegistered increments the segments registered counter.
func (m *Metrics) IncSegmentsRegistered() {
	m.segmentsRegisteredTotal.Inc()
}

// IncStreamsEnded increments the streams ended counter.
func (m *Metrics) IncStreamsEnded() {
	m.streamsEndedTotal.Inc()
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// IncRecordingsStarted increments the recordings started counter.
func (m *Metrics) IncRecordingsStarted() {
	m.recordingsStartedTotal.Inc()
}

// SetRecording sets the recording gauge to 1 or 0.
func (m *Metrics) SetRecording(on bool) {
	if on {
		m.recording.Set(1)
		return
	}
	m.recording.Set(0)
}

// IncSegmentsEmitted counts one emitted segment of the given kind and its size.
func (m *Metrics) IncSegmentsEmitted(kind string, size int) {
	m.segmentsEmittedTotal.WithLabelValues(kind).Inc()
	m.segmentBytesTotal.Add(float64(size))
}

// IncBuffersCaptured increments the captured buffers counter.
func (m *Metrics) IncBuffersCaptured() {
	m.buffersCapturedTotal.Inc()
}

// IncRuntimeErrors increments the runtime errors counter.
func (m *Metrics) IncRuntimeErrors() {
	m.runtimeErrorsTotal.Inc()
}

// SetLevels records the last aggregate peak and average levels.
func (m *Metrics) SetLevels(peak, avg float32) {
	m.peakLevel.Set(float64(peak))
	m.averageLevel.Set(float64(avg))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active streams).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

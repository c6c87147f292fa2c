package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the capture pipeline and the recognition gateway.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	captureTotal    *prometheus.CounterVec
	faceSearch      prometheus.Histogram
	recordsWritten  prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	captureTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_frames_total",
		Help: "Capture frames processed, labelled by outcome",
	}, []string{"status"})

	faceSearch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "face_search_duration_seconds",
		Help:    "Latency of recognition gateway searches",
		Buckets: prometheus.DefBuckets,
	})

	recordsWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_records_written_total",
		Help: "Attendance records written",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, captureTotal, faceSearch, recordsWritten, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		captureTotal:    captureTotal,
		faceSearch:      faceSearch,
		recordsWritten:  recordsWritten,
	}
}

// Handler exposes the scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveRequest records one completed HTTP request.
func (m *MetricsService) ObserveRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// ObserveCapture records the outcome of one capture frame.
func (m *MetricsService) ObserveCapture(status string) {
	m.captureTotal.WithLabelValues(status).Inc()
}

// ObserveFaceSearch records the latency of one gateway search.
func (m *MetricsService) ObserveFaceSearch(duration time.Duration) {
	m.faceSearch.Observe(duration.Seconds())
}

// RecordWritten counts a newly written attendance record.
func (m *MetricsService) RecordWritten() {
	m.recordsWritten.Inc()
}

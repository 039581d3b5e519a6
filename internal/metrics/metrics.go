package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdforganizer"

var (
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations by name and result (ok, invalid, failed)",
		},
		[]string{"operation", "result"},
	)

	operationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of an operation from intake to response",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	pagesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_written_total",
			Help:      "Pages written into output documents by operation",
		},
		[]string{"operation"},
	)

	uploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes accepted into the temp store from uploads and fetches",
		},
	)

	sweptFiles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_deleted_total",
			Help:      "Temp files deleted by the sweeper",
		},
	)

	sweepLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one sweep pass",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	cleanupFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Temp file deletions that failed, by origin (request, sweeper)",
		},
		[]string{"origin"},
	)

	activityFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_increment_failures_total",
			Help:      "Activity counter increments that failed",
		},
	)

	tempFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temp_files",
			Help:      "Files present in the temp store at the last sweep",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(operations, operationLatency, pagesWritten, uploadBytes,
		sweptFiles, sweepLatency, cleanupFailures, activityFailures, tempFiles)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveOperation(operation, result string, dur time.Duration) {
	operations.WithLabelValues(operation, result).Inc()
	operationLatency.WithLabelValues(operation).Observe(dur.Seconds())
}

func AddPages(operation string, n int) { pagesWritten.WithLabelValues(operation).Add(float64(n)) }
func AddUploadBytes(n int64)           { uploadBytes.Add(float64(n)) }

func ObserveSweep(deleted, remaining int, dur time.Duration) {
	sweptFiles.Add(float64(deleted))
	tempFiles.Set(float64(remaining))
	sweepLatency.Observe(dur.Seconds())
}

func IncCleanupFailure(origin string) { cleanupFailures.WithLabelValues(origin).Inc() }
func IncActivityFailure()             { activityFailures.Inc() }

// SweptTotal reports the sweeper counter; used by tests.
func SweptTotal() prometheus.Collector { return sweptFiles }

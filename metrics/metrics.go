package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var namespace = "vieworks"
var subsystem = "logstream"

var (
	// StartupTime stores how long the startup took (in seconds)
	StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "startup_seconds",
			Help:      "Seconds taken by the startup",
		},
	)

	// BucketSizeBytes stores the number of bytes written into each rotated
	// log file by the time it is closed
	BucketSizeBytes = promauto.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bucket_size_bytes",
		Help:      "Bytes written per rotated log file at close",
	})

	// BucketCloseDuration stores the time spent flushing and closing each
	// rotated log file
	BucketCloseDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bucket_close_duration_seconds",
		Help:      "Time spent flushing and closing rotated log files",
	})

	// ReadyBuffersCount stores the ready-buffer backlog observed at each
	// drain pass
	ReadyBuffersCount = promauto.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ready_buffers_count",
		Help:      "Ready-buffer backlog size observed at each drain",
	})

	// CorruptedFilesTotal stores the number of log files moved to quarantine
	CorruptedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "corrupted_files_total",
		Help:      "Number of structurally invalid log files quarantined",
	})
)

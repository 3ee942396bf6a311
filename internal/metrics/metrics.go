package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all popserver metrics
const namespace = "popserver"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// SubmissionsTotal counts proof-of-play submissions by outcome
// (stored, unauthorized, failed).
var SubmissionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Total number of proof-of-play submissions by outcome",
	},
	[]string{"outcome"},
)

// PlayEventsStoredTotal counts individual play events durably committed.
var PlayEventsStoredTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "play_events_stored_total",
		Help:      "Total number of play events durably committed",
	},
)

// SubmissionBatchSize records the number of play events per submission.
var SubmissionBatchSize = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "submission_batch_size",
		Help:      "Number of play events per submission",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
)

// Init sets application info metrics and registers the standard Go runtime
// and process collectors.
func Init(version, commit, buildDate string) {
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)

	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

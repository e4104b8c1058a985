package replica

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	replicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "litelease_replications_total",
			Help: "Total number of replication attempts by result",
		},
		[]string{"result"},
	)

	replicationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "litelease_replication_duration_seconds",
			Help:    "Time from lock request to lock release for one replication",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	replicationsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "litelease_replications_scheduled_total",
			Help: "Total number of replication requests handed to the throttler",
		},
	)
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

func recordReplication(err error, seconds float64) {
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	replicationsTotal.WithLabelValues(result).Inc()
	replicationDuration.Observe(seconds)
}

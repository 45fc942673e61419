package provisioning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	provisioningAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "provisioning_attempts_total",
			Help: "Total number of validated provisioning runs started",
		},
	)

	provisioningSuccesses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "provisioning_successes_total",
			Help: "Total number of fully successful provisioning runs",
		},
	)

	provisioningFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_failures_total",
			Help: "Total number of provisioning runs that failed, by step",
		},
		[]string{"step"},
	)

	compensationsRun = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_compensations_total",
			Help: "Total number of compensating actions executed, by step",
		},
		[]string{"step"},
	)
)

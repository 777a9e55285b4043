package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errander_runs_total",
		Help: "Completed runs by terminal status.",
	}, []string{"status"})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errander_steps_total",
		Help: "Dispatched steps by kind and result.",
	}, []string{"kind", "result"})
)

package watch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craigd_watch_scans_total",
		Help: "Scan cycles per stage watcher.",
	}, []string{"stage"})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craigd_watch_jobs_total",
		Help: "Dispatched jobs per stage watcher by outcome.",
	}, []string{"stage", "result"})
)

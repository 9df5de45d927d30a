package prefetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "craigd_prefetch_bytes_total",
		Help: "Bytes of media written to montage directories.",
	})

	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craigd_prefetch_files_total",
		Help: "Considered media URLs by outcome.",
	}, []string{"result"})
)

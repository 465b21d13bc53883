package syncqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	drainsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldlog_sync_drains_total",
		Help: "Queue drain passes started.",
	})
	confirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldlog_sync_confirmed_total",
		Help: "Records confirmed by the remote registry.",
	})
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldlog_sync_retries_total",
		Help: "Push attempts deferred for a later drain.",
	})
	failedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldlog_sync_failures_total",
		Help: "Records parked in the sync error state.",
	})
)

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workpoolPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiocenter_workpool_pending",
		Help: "Tasks accepted by the worker pool and not yet finished",
	})

	WorkpoolRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audiocenter_workpool_rejected_total",
		Help: "Tasks rejected because the worker pool queue was full",
	})

	WorkpoolPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audiocenter_workpool_panics_total",
		Help: "Tasks that panicked inside a worker",
	})
)

// AddWorkpoolPending moves the pending-task gauge by delta.
func AddWorkpoolPending(delta int) {
	workpoolPending.Add(float64(delta))
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TimesyncPacketsTotal counts time-sync datagrams by result.
var TimesyncPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "audiocenter_timesync_packets_total",
	Help: "Time-sync datagrams by result",
}, []string{"result"}) // result=replied|short|error

// IncTimesync records one time-sync datagram.
func IncTimesync(result string) {
	TimesyncPacketsTotal.WithLabelValues(result).Inc()
}

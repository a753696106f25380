// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiocenter_uploads_total",
		Help: "Upload sessions by terminal outcome",
	}, []string{"outcome"}) // outcome=finished|failed|cancelled|rejected|reaped

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audiocenter_upload_bytes_total",
		Help: "Chunk payload bytes written to reassembled files",
	})

	uploadSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiocenter_upload_sessions_active",
		Help: "Upload sessions currently open",
	})

	PushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiocenter_pushes_total",
		Help: "Files pushed to devices by result",
	}, []string{"result"}) // result=ok|failed
)

// IncUpload records a session reaching a terminal state.
func IncUpload(outcome string) {
	UploadsTotal.WithLabelValues(outcome).Inc()
}

// AddUploadBytes adds written chunk bytes.
func AddUploadBytes(n int) {
	uploadBytesTotal.Add(float64(n))
}

// SetUploadSessionsActive publishes the open session count.
func SetUploadSessionsActive(n int) {
	uploadSessionsActive.Set(float64(n))
}

// IncPush records the end of a file push.
func IncPush(result string) {
	PushesTotal.WithLabelValues(result).Inc()
}

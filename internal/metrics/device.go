// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	devicesConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiocenter_devices_connected",
		Help: "Number of device records currently registered",
	})

	DeviceConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiocenter_device_connections_total",
		Help: "Device link accept attempts by result",
	}, []string{"result"}) // result=accepted|rate_limited|error

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiocenter_frames_total",
		Help: "Frames crossing the device link by direction and message type",
	}, []string{"direction", "type"}) // direction=in|out

	ProtocolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiocenter_protocol_errors_total",
		Help: "Malformed frames that closed a connection, by kind",
	}, []string{"kind"})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiocenter_requests_total",
		Help: "Inbound device requests by subtype and result",
	}, []string{"subtype", "result"}) // result=ok|failed|unknown

	OutboundCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiocenter_outbound_commands_total",
		Help: "Commands sent to devices by subtype and result",
	}, []string{"subtype", "result"}) // result=sent|unavailable|invalid|error

	namePersistTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiocenter_name_persist_total",
		Help: "Name map persistence attempts by result",
	}, []string{"result"}) // result=ok|error|dropped
)

// SetDevicesConnected publishes the current registry size.
func SetDevicesConnected(n int) {
	devicesConnected.Set(float64(n))
}

// IncDeviceConnection counts one accept attempt on the device link.
func IncDeviceConnection(result string) {
	DeviceConnectionsTotal.WithLabelValues(result).Inc()
}

// IncFrame counts one frame in the given direction.
func IncFrame(direction, msgType string) {
	FramesTotal.WithLabelValues(direction, msgType).Inc()
}

// IncProtocolError counts a connection-fatal frame error.
func IncProtocolError(kind string) {
	if kind == "" {
		kind = "io"
	}
	ProtocolErrorsTotal.WithLabelValues(kind).Inc()
}

// IncRequest counts a handled inbound request.
func IncRequest(subtype, result string) {
	RequestsTotal.WithLabelValues(subtype, result).Inc()
}

// IncOutboundCommand counts one command addressed to one device.
func IncOutboundCommand(subtype, result string) {
	OutboundCommandsTotal.WithLabelValues(subtype, result).Inc()
}

// IncNamePersist counts a name map persistence attempt.
func IncNamePersist(result string) {
	namePersistTotal.WithLabelValues(result).Inc()
}

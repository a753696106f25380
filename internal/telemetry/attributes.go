// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Device attributes
	DeviceKeyKey  = "device.key"
	DeviceNameKey = "device.name"

	// Upload attributes
	UploadRemotePathKey   = "upload.remote_path"
	UploadTotalChunksKey  = "upload.total_chunks"
	UploadTotalLengthKey  = "upload.total_length"
	UploadBytesWrittenKey = "upload.bytes_written"
	UploadOutcomeKey      = "upload.outcome"

	// Push attributes
	PushPathKey   = "push.path"
	PushLengthKey = "push.length"
	PushChunksKey = "push.chunks"

	// Command attributes
	CommandSubtypeKey = "command.subtype"
	CommandTargetKey  = "command.target"
	CommandDevicesKey = "command.devices"

	// Recording attributes
	RecordingRunIDKey = "recording.run_id"
	RecordingSceneKey = "recording.scene_id"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// UploadAttributes describes an inbound upload session.
func UploadAttributes(deviceKey, remotePath string, totalChunks, totalLength int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DeviceKeyKey, deviceKey),
		attribute.String(UploadRemotePathKey, remotePath),
		attribute.Int64(UploadTotalChunksKey, totalChunks),
		attribute.Int64(UploadTotalLengthKey, totalLength),
	}
}

// PushAttributes describes an outbound file push. Zero sizes are omitted.
func PushAttributes(deviceKey, path string, length, chunks int64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if deviceKey != "" {
		attrs = append(attrs, attribute.String(DeviceKeyKey, deviceKey))
	}
	if path != "" {
		attrs = append(attrs, attribute.String(PushPathKey, path))
	}
	if length > 0 {
		attrs = append(attrs, attribute.Int64(PushLengthKey, length))
	}
	if chunks > 0 {
		attrs = append(attrs, attribute.Int64(PushChunksKey, chunks))
	}
	return attrs
}

// CommandAttributes describes an operator command fan-out.
func CommandAttributes(subtype, target string, devices int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CommandSubtypeKey, subtype),
		attribute.String(CommandTargetKey, target),
		attribute.Int(CommandDevicesKey, devices),
	}
}

// RecordingAttributes describes a synchronized recording run.
func RecordingAttributes(runID, sceneID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RecordingRunIDKey, runID),
		attribute.String(RecordingSceneKey, sceneID),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

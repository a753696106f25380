// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldDeviceKey     = "device_key"
	FieldDeviceName    = "device_name"
	FieldConnID        = "conn_id"
	FieldRunID         = "run_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Protocol fields
	FieldSubtype     = "subtype"
	FieldMessageType = "message_type"
	FieldChunkID     = "chunk_id"
	FieldTotalChunks = "total_chunks"
	FieldSessionTag  = "session_tag"

	// Path fields
	FieldPath       = "path"
	FieldRemotePath = "remote_path"

	// Network fields
	FieldRemoteAddr = "remote_addr"
	FieldLocalAddr  = "local_addr"
	FieldListen     = "listen"
)

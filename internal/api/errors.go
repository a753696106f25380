// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ManuGH/audiocenter/internal/dispatch"
	"github.com/ManuGH/audiocenter/internal/recording"
	"github.com/ManuGH/audiocenter/internal/session"
)

// Error codes carried in the "error" field.
const (
	codeInvalidArgument    = "invalid_argument"
	codeInvalidJSON        = "invalid_json"
	codeNotFound           = "not_found"
	codeMethodNotAllowed   = "method_not_allowed"
	codeDeviceNotFound     = "device_not_found"
	codeNoDevices          = "no_devices"
	codeCapabilityDisabled = "capability_disabled"
	codeSendFailed         = "send_failed"
	codeNoSession          = "no_session"
	codeAlreadyRecording   = "already_recording"
	codeNotRecording       = "not_recording"
	codeScheduleRunning    = "schedule_running"
	codeNoSchedule         = "no_schedule"
	codeInvalidConfig      = "invalid_config"
	codeInternal           = "internal_error"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"error","detail"} shape.
func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, ErrorResponse{Error: code, Detail: detail})
}

// writeDomainError maps service errors to status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidArgument), errors.Is(err, session.ErrInvalidTag):
		writeError(w, http.StatusBadRequest, codeInvalidArgument, err.Error())
	case errors.Is(err, recording.ErrNoDevices):
		writeError(w, http.StatusServiceUnavailable, codeNoDevices, err.Error())
	case errors.Is(err, recording.ErrAlreadyRecording):
		writeError(w, http.StatusConflict, codeAlreadyRecording, err.Error())
	case errors.Is(err, recording.ErrNotRecording):
		writeError(w, http.StatusConflict, codeNotRecording, err.Error())
	case errors.Is(err, recording.ErrScheduleRunning):
		writeError(w, http.StatusConflict, codeScheduleRunning, err.Error())
	case errors.Is(err, recording.ErrNoSchedule):
		writeError(w, http.StatusConflict, codeNoSchedule, err.Error())
	case errors.Is(err, dispatch.ErrCapabilityDisabled):
		writeError(w, http.StatusConflict, codeCapabilityDisabled, err.Error())
	case errors.Is(err, dispatch.ErrTargetUnavailable):
		writeError(w, http.StatusNotFound, codeNoDevices, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
	}
}

// decodeJSON strictly decodes an optional body. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, fmt.Sprintf("decode body: %v", err))
		return false
	}
	return true
}

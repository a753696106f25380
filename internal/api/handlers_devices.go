// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/ManuGH/audiocenter/internal/device"
	"github.com/ManuGH/audiocenter/internal/dispatch"
	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/go-chi/chi/v5"
)

// DeviceList is the body of GET /api/devices.
type DeviceList struct {
	DeviceCount int             `json:"device_count"`
	Devices     []device.Record `json:"devices"`
	Timestamp   int64           `json:"timestamp"`
}

// DeviceStatus is the body of GET /api/devices/status.
type DeviceStatus struct {
	ServerRunning   bool  `json:"server_running"`
	DeviceCount     int   `json:"device_count"`
	CaptureEnabled  int   `json:"capture_enabled"`
	PlaybackEnabled int   `json:"playback_enabled"`
	UploadsActive   bool  `json:"uploads_active"`
	Timestamp       int64 `json:"timestamp"`
}

// CapabilityRequest is the body of PUT /api/devices/{key}/capabilities.
type CapabilityRequest struct {
	Capability string `json:"capability"`
	Enable     string `json:"enable"`
}

// DeleteRequest names the remote file to remove.
type DeleteRequest struct {
	FilePath string `json:"filepath"`
}

// PushRequest names the local file to send.
type PushRequest struct {
	Path string `json:"path"`
}

// DeviceResult is the outcome for one targeted device.
type DeviceResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CommandResponse is the body of every device command.
type CommandResponse struct {
	Results map[string]DeviceResult `json:"results"`
	Failed  []string                `json:"failed"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	records := s.deps.Registry.Records()
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	writeJSON(w, http.StatusOK, DeviceList{
		DeviceCount: len(records),
		Devices:     records,
		Timestamp:   s.now().UnixMilli(),
	})
}

func (s *Server) handleDeviceStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DeviceStatus{
		ServerRunning:   true,
		DeviceCount:     s.deps.Registry.Len(),
		CaptureEnabled:  len(s.deps.Registry.CaptureKeys()),
		PlaybackEnabled: len(s.deps.Registry.PlaybackKeys()),
		UploadsActive:   s.deps.Uploads.HasActiveSessions(),
		Timestamp:       s.now().UnixMilli(),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rec, ok := s.deps.Registry.Lookup(key)
	if !ok {
		writeError(w, http.StatusNotFound, codeDeviceNotFound, "unknown device "+key)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSetCapability(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req CapabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := device.ParseCapability(req.Capability); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, err.Error())
		return
	}
	if _, err := device.ParseEnable(req.Enable); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, err.Error())
		return
	}
	if !s.deps.Registry.SetCapability(key, req.Capability, req.Enable) {
		writeError(w, http.StatusNotFound, codeDeviceNotFound, "unknown device "+key)
		return
	}
	rec, ok := s.deps.Registry.Lookup(key)
	if !ok {
		// disconnected between the update and the read
		writeError(w, http.StatusNotFound, codeDeviceNotFound, "unknown device "+key)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var cmd dispatch.CaptureCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	results, err := s.deps.Commander.Capture(r.Context(), chi.URLParam(r, "key"), cmd)
	s.writeResults(w, r, results, err)
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	var cmd dispatch.PlaybackCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	results, err := s.deps.Commander.Playback(r.Context(), chi.URLParam(r, "key"), cmd)
	s.writeResults(w, r, results, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	results, err := s.deps.Commander.Delete(r.Context(), chi.URLParam(r, "key"), req.FilePath)
	s.writeResults(w, r, results, err)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	results, err := s.deps.Commander.List(r.Context(), chi.URLParam(r, "key"))
	s.writeResults(w, r, results, err)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "path is required")
		return
	}
	results, err := s.deps.Commander.Push(r.Context(), chi.URLParam(r, "key"), req.Path)
	s.writeResults(w, r, results, err)
}

// writeResults answers 200 when at least one device got the command. A
// single-key target that failed maps its error to a status instead.
func (s *Server) writeResults(w http.ResponseWriter, r *http.Request, results dispatch.Results, err error) {
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := CommandResponse{Results: make(map[string]DeviceResult, len(results)), Failed: results.Failed()}
	if resp.Failed == nil {
		resp.Failed = []string{}
	}
	for k, e := range results {
		if e != nil {
			resp.Results[k] = DeviceResult{Error: e.Error()}
			continue
		}
		resp.Results[k] = DeviceResult{OK: true}
	}

	if len(results) > 0 && len(resp.Failed) == len(results) {
		first := results[resp.Failed[0]]
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(first).Int("devices", len(results)).Msg("command reached no device")
		status, code := http.StatusBadGateway, codeSendFailed
		switch {
		case errors.Is(first, dispatch.ErrTargetUnavailable):
			status, code = http.StatusNotFound, codeDeviceNotFound
		case errors.Is(first, dispatch.ErrCapabilityDisabled):
			status, code = http.StatusConflict, codeCapabilityDisabled
		}
		if len(results) == 1 {
			writeError(w, status, code, first.Error())
			return
		}
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

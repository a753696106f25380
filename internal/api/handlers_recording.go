// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/audiocenter/internal/recording"
)

// RecordingStartRequest is the body of POST /api/recording/start.
type RecordingStartRequest struct {
	SceneID  string `json:"scene_id"`
	Duration int    `json:"duration"`
	// Timestamp is accepted for client compatibility and otherwise unused.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// RecordingStatusResponse wraps the run status with the server clock.
type RecordingStatusResponse struct {
	recording.Status
	Timestamp int64 `json:"timestamp"`
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	var req RecordingStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, err := s.deps.Recording.Start(r.Context(), req.SceneID, req.Duration)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordingStatusResponse{Status: st, Timestamp: s.now().UnixMilli()})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Recording.Stop(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordingStatusResponse{Status: st, Timestamp: s.now().UnixMilli()})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RecordingStatusResponse{Status: s.deps.Recording.Status(), Timestamp: s.now().UnixMilli()})
}

// PlayRecordRequest is the body of POST /api/recording/play-record.
type PlayRecordRequest = recording.Plan

func (s *Server) handlePlayRecordStart(w http.ResponseWriter, r *http.Request) {
	var req PlayRecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.deps.Schedules.Run(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

func (s *Server) handlePlayRecordStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Schedules.Progress())
}

func (s *Server) handlePlayRecordCancel(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Schedules.Cancel(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/audiocenter/internal/timesync"
)

// TimeSyncRequest optionally carries the client clock in Unix milliseconds.
type TimeSyncRequest struct {
	ClientTimestamp *int64 `json:"client_timestamp,omitempty"`
}

// TimeSyncResponse is the body of POST /api/time/sync.
type TimeSyncResponse struct {
	ServerTimestamp int64  `json:"server_timestamp"`
	ClientTimestamp *int64 `json:"client_timestamp,omitempty"`
	OffsetMillis    *int64 `json:"offset_ms,omitempty"`
}

func (s *Server) handleTimeSync(w http.ResponseWriter, r *http.Request) {
	// Sample the clock before decoding so body parsing does not skew the offset.
	server := s.now().UnixMilli()

	var req TimeSyncRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp := TimeSyncResponse{ServerTimestamp: server}
	if req.ClientTimestamp != nil {
		offset := timesync.Offset(*req.ClientTimestamp, server)
		resp.ClientTimestamp = req.ClientTimestamp
		resp.OffsetMillis = &offset
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTimeCurrent(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"timestamp": s.now().UnixMilli()})
}

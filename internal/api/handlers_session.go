// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/audiocenter/internal/session"
	"github.com/ManuGH/audiocenter/internal/upload"
)

// SessionResponse reports the current operator session tag.
type SessionResponse struct {
	Open bool   `json:"open"`
	Tag  string `json:"tag,omitempty"`
}

// OpenSessionRequest is the body of POST /api/session.
type OpenSessionRequest struct {
	Tag string `json:"tag"`
}

// UploadsResponse is the body of GET /api/uploads.
type UploadsResponse struct {
	Active   bool                 `json:"active"`
	Sessions []upload.SessionInfo `json:"sessions"`
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, _ *http.Request) {
	tag := s.deps.Sessions.Current()
	writeJSON(w, http.StatusOK, SessionResponse{Open: tag != "", Tag: tag})
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Sessions.Open(req.Tag); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Open: true, Tag: req.Tag})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, _ *http.Request) {
	tag, ok := s.deps.Sessions.Close()
	if !ok {
		writeError(w, http.StatusNotFound, codeNoSession, "no session is open")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"closed": tag})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]session.Entry{"history": s.deps.Sessions.History()})
}

func (s *Server) handleUploads(w http.ResponseWriter, _ *http.Request) {
	sessions := s.deps.Uploads.Active()
	if sessions == nil {
		sessions = []upload.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, UploadsResponse{Active: len(sessions) > 0, Sessions: sessions})
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ManuGH/livereader/internal/log"
	"github.com/ManuGH/livereader/internal/logagg"
)

const (
	defaultLogLines = 20
	maxLogLines     = logagg.DefaultRingSize
)

type logsResponse struct {
	Streams []logagg.Snapshot `json:"streams"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeError(w, http.StatusNotFound, "logs_unavailable")
		return
	}
	n := defaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_lines")
			return
		}
		n = min(v, maxLogLines)
	}
	s.writeJSON(w, r, http.StatusOK, logsResponse{Streams: s.deps.Logs.Snapshot(n)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		writeError(w, http.StatusNotFound, "stats_unavailable")
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.deps.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Str(log.FieldPath, r.URL.Path).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"github.com/ManuGH/livereader/internal/loop"
	"github.com/ManuGH/livereader/internal/mailbox"
	"github.com/ManuGH/livereader/internal/procgraph"
)

// Status is a point-in-time view of a running session.
type Status struct {
	SessionID   string                  `json:"session_id"`
	Phase       string                  `json:"phase"`
	Stages      []procgraph.StageStatus `json:"stages"`
	Loop        loop.Stats              `json:"loop"`
	VideoBox    mailbox.Stats           `json:"video_mailbox"`
	AudioBox    mailbox.Stats           `json:"audio_mailbox"`
	CachedLines int                     `json:"cached_lines"`
}

// Session phases.
const (
	PhaseIdle     = "idle"
	PhaseStarting = "starting"
	PhaseRunning  = "running"
	PhaseStopping = "stopping"
	PhaseStopped  = "stopped"
)

// Status reports the current counters. It is safe to call concurrently with Run.
func (s *Session) Status() Status {
	st := Status{
		SessionID:   s.id,
		Phase:       s.phase.Load().(string),
		VideoBox:    s.channels.Video.Stats(),
		AudioBox:    s.channels.Audio.Stats(),
		CachedLines: s.audio.Cached(),
	}
	if g := s.graph.Load(); g != nil {
		st.Stages = g.Alive()
	}
	if p := s.preview.Load(); p != nil {
		st.Stages = append(st.Stages, p.Alive()...)
	}
	if l := s.loop.Load(); l != nil {
		st.Loop = l.Stats()
	}
	return st
}

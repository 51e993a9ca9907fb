// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"net/http"
	"os"
	"time"
)

// handleHealth reports overall service status and feature flags.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"features": map[string]any{
			"ptc_enabled":        s.cfg.PTC.Enabled && s.orch != nil,
			"rate_limit_enabled": s.cfg.RateLimit.Enabled,
			"auth_required":      s.cfg.Auth.Require,
		},
	})
}

// handleReady reports readiness: the store must answer.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleLiveness is the trivial liveness probe.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "alive"})
}

// handlePTCHealth reports Docker reachability, sandbox image status, and
// the sessions live on this instance. Sessions are node-local, so a
// multi-instance deployment needs sticky routing on the container id.
func (s *Server) handlePTCHealth(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()

	if !s.cfg.PTC.Enabled || s.orch == nil || s.executor == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "disabled",
			"instance": hostname,
		})
		return
	}

	if err := s.executor.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "unhealthy",
			"instance": hostname,
			"docker":   map[string]any{"available": false, "error": err.Error()},
		})
		return
	}

	imageReady, pullErr := s.executor.ImageStatus()
	image := map[string]any{
		"name":  s.cfg.PTC.Image,
		"ready": imageReady,
	}
	if pullErr != nil {
		image["pull_error"] = pullErr.Error()
	}

	sessions := s.orch.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"instance": hostname,
		"docker":   map[string]any{"available": true},
		"image":    image,
		"sessions": map[string]any{
			"active": sessions.Count(),
			"sample": sessions.SampleIDs(10),
		},
		"note": "PTC sessions are local to this instance; multi-instance deployments require sticky routing on the container id",
	})
}

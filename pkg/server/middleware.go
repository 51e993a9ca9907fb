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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

type contextKey int

const (
	ctxKeyIdentity contextKey = iota
	ctxKeyRequestID
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	Key         string
	Name        string
	ServiceTier string
	Master      bool
}

// identityFrom returns the caller identity, or nil when auth is off.
func identityFrom(ctx context.Context) *Identity {
	ident, _ := ctx.Value(ctxKeyIdentity).(*Identity)
	return ident
}

// requestIDFrom returns the request id assigned on intake.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// MaskKey renders an API key safe for logs, keeping the last 4
// characters: "sk-***abcd".
func MaskKey(key string) string {
	if key == "" {
		return "***"
	}
	if len(key) <= 7 {
		return "***"
	}
	return key[:3] + "***" + key[len(key)-4:]
}

// unauthenticatedPaths are served without a key.
var unauthenticatedPaths = map[string]bool{
	"/health":     true,
	"/health/ptc": true,
	"/ready":      true,
	"/liveness":   true,
}

// withRequestID assigns a request id and a request-scoped log entry.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("x-request-id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("x-request-id", requestID)

		start := time.Now()
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))

		s.logger.Debug("request completed",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withAuth validates the API key header against the master key and the
// key store, and attaches the caller identity.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unauthenticatedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !s.cfg.Auth.Require {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(s.cfg.Auth.Header)
		if key == "" {
			writeError(w, anthropic.NewError(anthropic.ErrAuthentication,
				fmt.Sprintf("Missing API key in %s header", s.cfg.Auth.Header)))
			return
		}

		if s.cfg.Auth.MasterAPIKey != "" && key == s.cfg.Auth.MasterAPIKey {
			ctx := context.WithValue(r.Context(), ctxKeyIdentity, &Identity{
				Key:    key,
				Name:   "master",
				Master: true,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		record, err := s.store.ValidateKey(r.Context(), key)
		if err != nil {
			s.logger.Warn("api key rejected",
				zap.String("api_key", MaskKey(key)),
				zap.Error(err),
			)
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyIdentity, &Identity{
			Key:         record.Key,
			Name:        record.Name,
			ServiceTier: record.ServiceTier,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withRateLimit enforces the per-key token bucket. Runs after auth so
// the bucket is keyed by a validated key; the master key is exempt.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.RateLimit.Enabled || unauthenticatedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		ident := identityFrom(r.Context())
		if ident == nil || ident.Master {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, retryAfter := s.limiter.Allow(ident.Key)
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", s.cfg.RateLimit.Requests))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(s.cfg.RateLimit.Window).Unix()))
		if !allowed {
			seconds := int(retryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
			s.logger.Warn("rate limit exceeded", zap.String("api_key", MaskKey(ident.Key)))
			writeError(w, anthropic.NewError(anthropic.ErrRateLimit,
				fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", seconds)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError renders an error as the single JSON error shape.
func writeError(w http.ResponseWriter, err error) {
	apiErr := anthropic.AsAPIError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status())
	_ = json.NewEncoder(w).Encode(apiErr.Body())
}

// writeJSON renders a success body.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

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

// Package server exposes the Anthropic-compatible HTTP surface: the
// Messages endpoint with streaming and PTC routing, token counting, and
// health probes, behind API key auth and per-key rate limiting.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/relay/pkg/bedrock"
	"github.com/teradata-labs/relay/pkg/config"
	"github.com/teradata-labs/relay/pkg/ptc"
	"github.com/teradata-labs/relay/pkg/sandbox"
	"github.com/teradata-labs/relay/pkg/storage"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg      *config.Config
	store    *storage.Store
	invoker  bedrock.Invoker
	orch     *ptc.Orchestrator
	executor *sandbox.Executor
	limiter  *RateLimiter
	logger   *zap.Logger
	http     *http.Server
	started  time.Time
}

// New builds the server. orch and executor may be nil when PTC is
// disabled or Docker is unavailable; PTC requests then fall through to
// the plain translation path.
func New(cfg *config.Config, store *storage.Store, invoker bedrock.Invoker, orch *ptc.Orchestrator, executor *sandbox.Executor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		invoker:  invoker,
		orch:     orch,
		executor: executor,
		limiter:  NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		logger:   logger,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", s.handleMessages)
	mux.HandleFunc("POST /v1/messages/count_tokens", s.handleCountTokens)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ptc", s.handlePTCHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /liveness", s.handleLiveness)

	handler := s.withRequestID(s.withAuth(s.withRateLimit(mux)))

	s.http = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     handler,
		ReadTimeout: 60 * time.Second,
		// SSE responses stay open for the life of the stream.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

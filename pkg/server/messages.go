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

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/pkg/anthropic"
	"github.com/teradata-labs/relay/pkg/bedrock"
	"github.com/teradata-labs/relay/pkg/ptc"
	"github.com/teradata-labs/relay/pkg/storage"
)

// containerIDHeader carries the PTC session id on continuation turns.
// It sits outside the Messages body so SDK clients can set it without
// schema changes; a `container` body field is accepted as well.
const containerIDHeader = "x-container-id"

// handleMessages serves POST /v1/messages.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req anthropic.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, anthropic.NewInvalidRequestError(fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := validateToolSchemas(req.Tools); err != nil {
		writeError(w, err)
		return
	}

	ident := identityFrom(r.Context())
	opts := ptc.CallOptions{
		RequestID:   requestIDFrom(r.Context()),
		ServiceTier: s.serviceTier(ident),
		BetaHeader:  r.Header.Get("anthropic-beta"),
		ContainerID: r.Header.Get(containerIDHeader),
	}

	s.logger.Info("messages request",
		zap.String("request_id", opts.RequestID),
		zap.String("model", req.Model),
		zap.String("api_key", maskedIdentity(ident)),
		zap.Bool("stream", req.Stream),
	)

	if s.orch != nil &&
		(ptc.IsPTCRequest(&req, opts.BetaHeader, s.cfg.PTC.Enabled) || s.orch.IsContinuation(&req, opts)) {
		s.handlePTCMessages(w, r, &req, opts, ident)
		return
	}
	s.handleDirectMessages(w, r, &req, opts, ident)
}

// handleDirectMessages is the plain translation path: prepare, invoke or
// stream, record usage.
func (s *Server) handleDirectMessages(w http.ResponseWriter, r *http.Request, req *anthropic.Request, opts ptc.CallOptions, ident *Identity) {
	ctx := r.Context()

	modelID, err := s.store.ResolveModel(ctx, req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	prep, err := bedrock.Prepare(req, modelID, opts.BetaHeader, opts.ServiceTier)
	if err != nil {
		writeError(w, err)
		return
	}
	messageID := newMessageID()

	if !req.Stream {
		resp, err := s.invoker.Invoke(ctx, prep, messageID)
		if err != nil {
			writeError(w, err)
			return
		}
		s.recordUsage(ident, opts, modelID, resp.Usage)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if s.cfg.Server.StreamDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.StreamDeadline)
		defer cancel()
	}

	items, err := s.invoker.Stream(ctx, prep, messageID)
	if err != nil {
		writeError(w, err)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, anthropic.NewError(anthropic.ErrAPI, err.Error()))
		return
	}

	var usage anthropic.Usage
	for item := range items {
		if item.Err != nil {
			sse.WriteError(item.Err)
			break
		}
		trackStreamUsage(&usage, item.Event)
		if err := sse.Write(*item.Event); err != nil {
			s.logger.Debug("client disconnected mid-stream",
				zap.String("request_id", opts.RequestID), zap.Error(err))
			break
		}
	}
	s.recordUsage(ident, opts, modelID, usage)
}

// handlePTCMessages routes a PTC turn through the orchestrator. The
// backend runs non-streaming; when the client asked for a stream the
// final response is replayed as synthesized SSE events.
func (s *Server) handlePTCMessages(w http.ResponseWriter, r *http.Request, req *anthropic.Request, opts ptc.CallOptions, ident *Identity) {
	ctx := r.Context()
	if s.cfg.Server.StreamDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.StreamDeadline)
		defer cancel()
	}

	var (
		resp *anthropic.Response
		err  error
	)
	if s.orch.IsContinuation(req, opts) {
		resp, err = s.orch.Continue(ctx, req, opts)
	} else {
		resp, err = s.orch.Handle(ctx, req, opts)
	}

	if !req.Stream {
		if err != nil {
			writeError(w, err)
			return
		}
		s.recordUsage(ident, opts, req.Model, resp.Usage)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	sse, sseErr := newSSEWriter(w)
	if sseErr != nil {
		writeError(w, anthropic.NewError(anthropic.ErrAPI, sseErr.Error()))
		return
	}
	if err != nil {
		sse.WriteError(err)
		return
	}
	for _, event := range ptc.EmitResponse(resp) {
		if werr := sse.Write(event); werr != nil {
			s.logger.Debug("client disconnected mid-stream",
				zap.String("request_id", opts.RequestID), zap.Error(werr))
			return
		}
	}
	s.recordUsage(ident, opts, req.Model, resp.Usage)
}

// handleCountTokens serves POST /v1/messages/count_tokens.
func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	var req anthropic.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, anthropic.NewInvalidRequestError(fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if req.Model == "" {
		writeError(w, anthropic.NewInvalidRequestError("model is required"))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, anthropic.NewInvalidRequestError("messages must not be empty"))
		return
	}

	modelID, err := s.store.ResolveModel(r.Context(), req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := s.invoker.CountTokens(r.Context(), &req, modelID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, anthropic.CountTokensResponse{InputTokens: count})
}

// validateToolSchemas compiles each client tool's input_schema so
// malformed schemas fail fast instead of erroring at the backend.
func validateToolSchemas(tools []anthropic.Tool) error {
	for _, tool := range tools {
		if tool.Type != "" || tool.InputSchema == nil {
			continue
		}
		loader := gojsonschema.NewGoLoader(tool.InputSchema)
		if _, err := gojsonschema.NewSchema(loader); err != nil {
			return anthropic.NewInvalidRequestError(fmt.Sprintf(
				"tools: invalid input_schema for %q: %v", tool.Name, err))
		}
	}
	return nil
}

// trackStreamUsage folds usage out of message_start and message_delta
// events so streamed calls are billed like blocking ones.
func trackStreamUsage(usage *anthropic.Usage, event *anthropic.StreamEvent) {
	switch data := event.Data.(type) {
	case anthropic.MessageStartEvent:
		usage.InputTokens += data.Message.Usage.InputTokens
	case anthropic.MessageDeltaEvent:
		usage.OutputTokens += data.Usage.OutputTokens
		if data.Usage.InputTokens > 0 {
			usage.InputTokens += data.Usage.InputTokens
		}
	}
}

// serviceTier picks the caller's tier, falling back to the configured
// default.
func (s *Server) serviceTier(ident *Identity) string {
	if ident != nil && ident.ServiceTier != "" {
		return ident.ServiceTier
	}
	return s.cfg.Bedrock.DefaultServiceTier
}

func maskedIdentity(ident *Identity) string {
	if ident == nil {
		return "anonymous"
	}
	return MaskKey(ident.Key)
}

// recordUsage prices and persists one call's usage off the request
// path. Anonymous and master calls are logged but not billed.
func (s *Server) recordUsage(ident *Identity, opts ptc.CallOptions, model string, usage anthropic.Usage) {
	if ident == nil || ident.Master {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cacheRead, cacheWrite := 0, 0
		if usage.CacheReadInputTokens != nil {
			cacheRead = *usage.CacheReadInputTokens
		}
		if usage.CacheCreationInputTokens != nil {
			cacheWrite = *usage.CacheCreationInputTokens
		}

		resolved, err := s.store.ResolveModel(ctx, model)
		if err != nil {
			resolved = model
		}
		cost, err := s.store.ComputeCost(ctx, resolved, opts.ServiceTier,
			usage.InputTokens, usage.OutputTokens, cacheRead, cacheWrite)
		if err != nil {
			s.logger.Warn("failed to price usage",
				zap.String("request_id", opts.RequestID), zap.Error(err))
		}

		rec := storage.UsageRecord{
			APIKey:       ident.Key,
			RequestID:    opts.RequestID,
			Model:        resolved,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			CacheRead:    cacheRead,
			CacheWrite:   cacheWrite,
			Cost:         cost,
			ServiceTier:  opts.ServiceTier,
		}
		if err := s.store.RecordUsage(ctx, rec); err != nil {
			s.logger.Warn("failed to record usage",
				zap.String("request_id", opts.RequestID),
				zap.String("api_key", MaskKey(ident.Key)),
				zap.Error(err),
			)
		}
	}()
}

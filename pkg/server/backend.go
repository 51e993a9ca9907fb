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
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/pkg/anthropic"
	"github.com/teradata-labs/relay/pkg/bedrock"
	"github.com/teradata-labs/relay/pkg/ptc"
	"github.com/teradata-labs/relay/pkg/storage"
)

// BedrockBackend adapts the store-aware model resolution plus request
// preparation onto the orchestrator's backend surface. Every PTC round
// trip goes through here non-streaming.
type BedrockBackend struct {
	invoker bedrock.Invoker
	store   *storage.Store
	logger  *zap.Logger
}

var _ ptc.Backend = (*BedrockBackend)(nil)

// NewBedrockBackend wires the adapter.
func NewBedrockBackend(invoker bedrock.Invoker, store *storage.Store, logger *zap.Logger) *BedrockBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BedrockBackend{invoker: invoker, store: store, logger: logger}
}

// Invoke resolves the model id, prepares the backend request, and runs
// one non-streaming call.
func (b *BedrockBackend) Invoke(ctx context.Context, req *anthropic.Request, requestID, serviceTier, betaHeader string) (*anthropic.Response, error) {
	modelID, err := b.store.ResolveModel(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	prep, err := bedrock.Prepare(req, modelID, betaHeader, serviceTier)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("backend invoke",
		zap.String("request_id", requestID),
		zap.String("model", modelID),
		zap.Bool("native", prep.UseNative),
	)
	return b.invoker.Invoke(ctx, prep, newMessageID())
}

// newMessageID produces a response message id.
func newMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

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

package bedrock

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

// StreamItem is one element of a bridged backend stream. The channel is
// FIFO and closing it is the done sentinel; an item with Err set is the
// last item before close.
type StreamItem struct {
	Event *anthropic.StreamEvent
	Err   error
}

// converseStreamEvents is the subset of the SDK event stream the bridge
// consumes, abstracted for tests.
type converseStreamEvents interface {
	Events() <-chan bedrocktypes.ConverseStreamOutput
	Err() error
}

// nativeStreamEvents is the InvokeModel response stream counterpart.
type nativeStreamEvents interface {
	Events() <-chan bedrocktypes.ResponseStream
	Err() error
}

// bridgeConverseStream converts a Converse event stream into Messages SSE
// events.
//
// Correctness rules carried by this bridge:
//   - A contentBlockDelta for an index with no prior contentBlockStart gets
//     a synthesized content_block_start first. The synthesized type is
//     thinking when the delta carries reasoning content, else text.
//   - Usage from the trailing metadata event folds into message_delta.
//   - Event order on the output channel is exactly emission order.
func bridgeConverseStream(ctx context.Context, stream converseStreamEvents, model, messageID string, logger *zap.Logger, out chan<- StreamItem) {
	defer close(out)

	seen := map[int]bool{}
	stopReason := anthropic.StopEndTurn
	var usage anthropic.Usage
	sentDelta := false

	emit := func(name string, data any) bool {
		select {
		case out <- StreamItem{Event: &anthropic.StreamEvent{Name: name, Data: data}}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	emitStopPair := func() {
		if sentDelta {
			return
		}
		sentDelta = true
		emit(anthropic.EventMessageDelta, anthropic.MessageDeltaEvent{
			Type:  anthropic.EventMessageDelta,
			Delta: anthropic.MessageDelta{StopReason: stopReason},
			Usage: usage,
		})
		emit(anthropic.EventMessageStop, anthropic.MessageStopEvent{Type: anthropic.EventMessageStop})
	}

	emit(anthropic.EventMessageStart, anthropic.MessageStartEvent{
		Type: anthropic.EventMessageStart,
		Message: anthropic.StartMessage{
			ID:      messageID,
			Type:    "message",
			Role:    anthropic.RoleAssistant,
			Content: []anthropic.ContentBlock{},
			Model:   model,
		},
	})

	for event := range stream.Events() {
		switch ev := event.(type) {
		case *bedrocktypes.ConverseStreamOutputMemberMessageStart:
			// Already emitted our own message_start above.

		case *bedrocktypes.ConverseStreamOutputMemberContentBlockStart:
			index := int(aws.ToInt32(ev.Value.ContentBlockIndex))
			seen[index] = true
			block := anthropic.ContentBlock{Type: anthropic.BlockText}
			if start, ok := ev.Value.Start.(*bedrocktypes.ContentBlockStartMemberToolUse); ok {
				block = anthropic.ContentBlock{
					Type:  anthropic.BlockToolUse,
					ID:    aws.ToString(start.Value.ToolUseId),
					Name:  aws.ToString(start.Value.Name),
					Input: map[string]any{},
				}
			}
			if !emit(anthropic.EventContentBlockStart, anthropic.ContentBlockStartEvent{
				Type:         anthropic.EventContentBlockStart,
				Index:        index,
				ContentBlock: block,
			}) {
				return
			}

		case *bedrocktypes.ConverseStreamOutputMemberContentBlockDelta:
			index := int(aws.ToInt32(ev.Value.ContentBlockIndex))
			delta, isThinking := convertStreamDelta(ev.Value.Delta)
			if delta == nil {
				continue
			}
			if !seen[index] {
				seen[index] = true
				block := anthropic.ContentBlock{Type: anthropic.BlockText, Text: ""}
				if isThinking {
					block = anthropic.ContentBlock{Type: anthropic.BlockThinking, Thinking: ""}
				}
				if !emit(anthropic.EventContentBlockStart, anthropic.ContentBlockStartEvent{
					Type:         anthropic.EventContentBlockStart,
					Index:        index,
					ContentBlock: block,
				}) {
					return
				}
			}
			if !emit(anthropic.EventContentBlockDelta, anthropic.ContentBlockDeltaEvent{
				Type:  anthropic.EventContentBlockDelta,
				Index: index,
				Delta: *delta,
			}) {
				return
			}

		case *bedrocktypes.ConverseStreamOutputMemberContentBlockStop:
			index := int(aws.ToInt32(ev.Value.ContentBlockIndex))
			if !emit(anthropic.EventContentBlockStop, anthropic.ContentBlockStopEvent{
				Type:  anthropic.EventContentBlockStop,
				Index: index,
			}) {
				return
			}

		case *bedrocktypes.ConverseStreamOutputMemberMessageStop:
			stopReason = mapStopReason(ev.Value.StopReason)

		case *bedrocktypes.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				usage.Add(convertTokenUsage(ev.Value.Usage))
			}
			emitStopPair()

		default:
			logger.Debug("skipping unknown converse stream event")
		}
	}

	if err := stream.Err(); err != nil {
		apiErr := TranslateError(err)
		select {
		case out <- StreamItem{Err: apiErr}:
		case <-ctx.Done():
		}
		return
	}
	emitStopPair()
}

// convertStreamDelta maps a Converse delta union member onto a Messages
// delta, reporting whether it carries reasoning content.
func convertStreamDelta(delta bedrocktypes.ContentBlockDelta) (*anthropic.Delta, bool) {
	switch d := delta.(type) {
	case *bedrocktypes.ContentBlockDeltaMemberText:
		return &anthropic.Delta{Type: "text_delta", Text: d.Value}, false

	case *bedrocktypes.ContentBlockDeltaMemberReasoningContent:
		switch r := d.Value.(type) {
		case *bedrocktypes.ReasoningContentBlockDeltaMemberText:
			return &anthropic.Delta{Type: "thinking_delta", Thinking: r.Value}, true
		case *bedrocktypes.ReasoningContentBlockDeltaMemberSignature:
			return &anthropic.Delta{Type: "signature_delta", Signature: r.Value}, true
		}
		return nil, true

	case *bedrocktypes.ContentBlockDeltaMemberToolUse:
		return &anthropic.Delta{Type: "input_json_delta", PartialJSON: aws.ToString(d.Value.Input)}, false

	default:
		return nil, false
	}
}

// bridgeNativeStream re-emits an InvokeModel response stream. Chunks are
// already Anthropic-shaped events; the bridge frames them verbatim using
// the embedded type as the SSE event name, logging but not interpreting.
func bridgeNativeStream(ctx context.Context, stream nativeStreamEvents, logger *zap.Logger, out chan<- StreamItem) {
	defer close(out)

	for event := range stream.Events() {
		chunk, ok := event.(*bedrocktypes.ResponseStreamMemberChunk)
		if !ok {
			logger.Debug("skipping unknown native stream event")
			continue
		}
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(chunk.Value.Bytes, &envelope); err != nil || envelope.Type == "" {
			logger.Warn("dropping unparseable native stream chunk", zap.Error(err))
			continue
		}
		select {
		case out <- StreamItem{Event: &anthropic.StreamEvent{
			Name: envelope.Type,
			Data: json.RawMessage(chunk.Value.Bytes),
		}}:
		case <-ctx.Done():
			return
		}
	}

	if err := stream.Err(); err != nil {
		select {
		case out <- StreamItem{Err: TranslateError(err)}:
		case <-ctx.Done():
		}
	}
}

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

package ptc

import (
	"github.com/teradata-labs/relay/pkg/anthropic"
)

// EmitResponse synthesizes the Anthropic SSE sequence for a completed
// PTC turn. The backend was called non-streaming; the client still sees
// a well-formed stream: message_start carrying the container, one
// content_block triple per block, message_delta with the stop reason,
// and message_stop.
func EmitResponse(resp *anthropic.Response) []anthropic.StreamEvent {
	events := []anthropic.StreamEvent{
		messageStartEvent(resp),
	}

	for index, block := range resp.Content {
		events = append(events, contentBlockEvents(block, index)...)
	}

	stopReason := resp.StopReason
	if stopReason == "" {
		stopReason = anthropic.StopEndTurn
	}
	events = append(events,
		streamEvent(anthropic.EventMessageDelta, anthropic.MessageDeltaEvent{
			Type: anthropic.EventMessageDelta,
			Delta: anthropic.MessageDelta{
				StopReason:   stopReason,
				StopSequence: resp.StopSequence,
			},
			Usage: anthropic.Usage{OutputTokens: resp.Usage.OutputTokens},
		}),
		streamEvent(anthropic.EventMessageStop, anthropic.MessageStopEvent{
			Type: anthropic.EventMessageStop,
		}),
	)
	return events
}

// EmitError renders a terminal error event for a streaming PTC turn.
func EmitError(err error) anthropic.StreamEvent {
	apiErr := anthropic.AsAPIError(err)
	return streamEvent(anthropic.EventError, map[string]any{
		"type":  anthropic.EventError,
		"error": apiErr.Body().Error,
	})
}

func messageStartEvent(resp *anthropic.Response) anthropic.StreamEvent {
	return streamEvent(anthropic.EventMessageStart, anthropic.MessageStartEvent{
		Type: anthropic.EventMessageStart,
		Message: anthropic.StartMessage{
			ID:        resp.ID,
			Type:      "message",
			Role:      anthropic.RoleAssistant,
			Content:   []anthropic.ContentBlock{},
			Model:     resp.Model,
			Usage:     anthropic.Usage{InputTokens: resp.Usage.InputTokens},
			Container: resp.Container,
		},
	})
}

// contentBlockEvents renders one block as start/delta/stop. Text and
// thinking content travel as a single delta; tool blocks carry their
// input inside content_block_start.
func contentBlockEvents(block anthropic.ContentBlock, index int) []anthropic.StreamEvent {
	var events []anthropic.StreamEvent

	switch block.Type {
	case anthropic.BlockText:
		events = append(events, startEvent(index, anthropic.ContentBlock{Type: anthropic.BlockText}))
		if block.Text != "" {
			events = append(events, streamEvent(anthropic.EventContentBlockDelta, anthropic.ContentBlockDeltaEvent{
				Type:  anthropic.EventContentBlockDelta,
				Index: index,
				Delta: anthropic.Delta{Type: "text_delta", Text: block.Text},
			}))
		}

	case anthropic.BlockThinking:
		events = append(events, startEvent(index, anthropic.ContentBlock{Type: anthropic.BlockThinking}))
		if block.Thinking != "" {
			events = append(events, streamEvent(anthropic.EventContentBlockDelta, anthropic.ContentBlockDeltaEvent{
				Type:  anthropic.EventContentBlockDelta,
				Index: index,
				Delta: anthropic.Delta{Type: "thinking_delta", Thinking: block.Thinking},
			}))
		}
		if block.Signature != "" {
			events = append(events, streamEvent(anthropic.EventContentBlockDelta, anthropic.ContentBlockDeltaEvent{
				Type:  anthropic.EventContentBlockDelta,
				Index: index,
				Delta: anthropic.Delta{Type: "signature_delta", Signature: block.Signature},
			}))
		}

	default:
		// tool_use, server_tool_use, redacted_thinking and the rest go
		// out whole inside content_block_start.
		events = append(events, startEvent(index, block))
	}

	events = append(events, streamEvent(anthropic.EventContentBlockStop, anthropic.ContentBlockStopEvent{
		Type:  anthropic.EventContentBlockStop,
		Index: index,
	}))
	return events
}

func startEvent(index int, block anthropic.ContentBlock) anthropic.StreamEvent {
	return streamEvent(anthropic.EventContentBlockStart, anthropic.ContentBlockStartEvent{
		Type:         anthropic.EventContentBlockStart,
		Index:        index,
		ContentBlock: block,
	})
}

func streamEvent(name string, payload any) anthropic.StreamEvent {
	return anthropic.StreamEvent{Name: name, Data: payload}
}

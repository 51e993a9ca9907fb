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

// filterNonDirectToolCalls removes tool_use blocks whose caller is not
// direct, their matching tool_result blocks, and all server_tool_use
// blocks from the history the backend sees. Those pairs are internal to
// prior PTC turns. Remaining tool_use blocks lose their caller field,
// and assistant thinking blocks are moved first. Messages emptied by
// filtering are dropped.
func filterNonDirectToolCalls(messages []anthropic.Message) []anthropic.Message {
	// First pass: collect ids of blocks that must not reach the backend.
	internal := map[string]bool{}
	for _, msg := range messages {
		if msg.Role != anthropic.RoleAssistant {
			continue
		}
		for _, b := range msg.Content.Blocks {
			switch {
			case b.Type == anthropic.BlockServerToolUse && b.ID != "":
				internal[b.ID] = true
			case b.Type == anthropic.BlockToolUse && b.Caller != nil && b.Caller.Type != anthropic.CallerDirect:
				if b.ID != "" {
					internal[b.ID] = true
				}
			}
		}
	}

	out := make([]anthropic.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Content.Plain {
			out = append(out, msg)
			continue
		}

		var thinking, rest []anthropic.ContentBlock
		for _, b := range msg.Content.Blocks {
			switch b.Type {
			case anthropic.BlockServerToolUse, anthropic.BlockServerToolResult:
				continue
			case anthropic.BlockToolUse:
				if internal[b.ID] {
					continue
				}
				b.Caller = nil
				rest = append(rest, b)
				continue
			case anthropic.BlockToolResult:
				if internal[b.ToolUseID] {
					continue
				}
			}
			if msg.Role == anthropic.RoleAssistant && b.IsThinking() {
				thinking = append(thinking, b)
			} else {
				rest = append(rest, b)
			}
		}

		blocks := append(thinking, rest...)
		if len(blocks) == 0 {
			continue
		}
		out = append(out, anthropic.Message{
			Role:    msg.Role,
			Content: anthropic.BlockContent(blocks...),
		})
	}
	return out
}

// filterAssistantBlocks prepares one assistant content list for the
// backend: server tool blocks and non-direct tool_use blocks are
// dropped, caller fields are stripped, thinking blocks come first.
func filterAssistantBlocks(blocks []anthropic.ContentBlock) []anthropic.ContentBlock {
	var thinking, rest []anthropic.ContentBlock
	for _, b := range blocks {
		switch b.Type {
		case anthropic.BlockServerToolUse, anthropic.BlockServerToolResult:
			continue
		case anthropic.BlockToolUse:
			if b.Caller != nil && b.Caller.Type != anthropic.CallerDirect {
				continue
			}
			b.Caller = nil
			rest = append(rest, b)
			continue
		}
		if b.IsThinking() {
			thinking = append(thinking, b)
		} else {
			rest = append(rest, b)
		}
	}
	return append(thinking, rest...)
}

// addDirectCaller tags every untagged tool_use block in a response with
// the direct caller. PTC responses always carry explicit caller fields.
func addDirectCaller(resp *anthropic.Response) *anthropic.Response {
	for i, b := range resp.Content {
		if b.Type == anthropic.BlockToolUse && b.Caller == nil {
			resp.Content[i].Caller = &anthropic.Caller{Type: anthropic.CallerDirect}
		}
	}
	return resp
}

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

// Package anthropic defines the Messages API wire types served by the
// gateway: requests, content blocks, responses, streaming event names, and
// the error taxonomy. Content is a closed set of block types discriminated
// by the "type" field; callers switch on ContentBlock.Type rather than
// reflecting over raw JSON.
package anthropic

import (
	"encoding/json"
	"fmt"
	"time"
)

// Roles used in the Messages API.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText             = "text"
	BlockThinking         = "thinking"
	BlockRedactedThinking = "redacted_thinking"
	BlockToolUse          = "tool_use"
	BlockToolResult       = "tool_result"
	BlockServerToolUse    = "server_tool_use"
	BlockServerToolResult = "server_tool_result"
	BlockImage            = "image"
	BlockDocument         = "document"
	BlockCompaction       = "compaction"
)

// Stop reasons.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopStopSequence = "stop_sequence"
	StopToolUse      = "tool_use"
	StopPauseTurn    = "pause_turn"
)

// Caller types on tool_use blocks. The caller field is internal to the
// gateway and is stripped before any backend call.
const (
	CallerDirect        = "direct"
	CallerCodeExecution = "code_execution_20250825"
)

// Typed server tool identifiers recognized on tool definitions.
const (
	ToolTypeCodeExecution     = "code_execution_20250825"
	ToolTypeSearchRegexDated  = "tool_search_tool_regex_20251119"
	ToolTypeSearchDated       = "tool_search_tool_20251119"
	ToolTypeSearchRegexPlain  = "tool_search_tool_regex"
	ToolTypeSearchPlain       = "tool_search_tool"
	ExecuteCodeToolName       = "execute_code"
	CodeExecutionToolName     = "code_execution"
	AnthropicVersionBedrock   = "bedrock-2023-05-31"
)

// Request is a Messages API request body.
type Request struct {
	Model             string          `json:"model"`
	Messages          []Message       `json:"messages"`
	System            SystemPrompt    `json:"system,omitempty"`
	MaxTokens         int             `json:"max_tokens"`
	Temperature       *float64        `json:"temperature,omitempty"`
	TopP              *float64        `json:"top_p,omitempty"`
	TopK              *int            `json:"top_k,omitempty"`
	StopSequences     []string        `json:"stop_sequences,omitempty"`
	Stream            bool            `json:"stream,omitempty"`
	Tools             []Tool          `json:"tools,omitempty"`
	ToolChoice        *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking          json.RawMessage `json:"thinking,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	OutputConfig      json.RawMessage `json:"output_config,omitempty"`
	ContextManagement json.RawMessage `json:"context_management,omitempty"`

	// Container carries the PTC session id echoed by the client on
	// continuation turns. Not part of the public Anthropic schema for
	// non-PTC requests.
	Container string `json:"container,omitempty"`
}

// Message is one conversation turn. Content order is semantically
// significant.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is either a plain string or an ordered list of content
// blocks on the wire. It always normalizes to blocks internally.
type MessageContent struct {
	Blocks []ContentBlock
	// Plain is set when the wire form was a bare string, so echoes keep
	// their original shape.
	Plain bool
}

// TextContent builds a single-text-block content value.
func TextContent(text string) MessageContent {
	return MessageContent{Blocks: []ContentBlock{{Type: BlockText, Text: text}}, Plain: true}
}

// BlockContent builds content from explicit blocks.
func BlockContent(blocks ...ContentBlock) MessageContent {
	return MessageContent{Blocks: blocks}
}

// UnmarshalJSON accepts both the string and the block-list wire forms.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Blocks = []ContentBlock{{Type: BlockText, Text: s}}
		c.Plain = true
		return nil
	}
	c.Plain = false
	return json.Unmarshal(data, &c.Blocks)
}

// MarshalJSON re-emits the original wire shape.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Plain && len(c.Blocks) == 1 && c.Blocks[0].Type == BlockText {
		return json.Marshal(c.Blocks[0].Text)
	}
	if c.Blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Blocks)
}

// ContentBlock is the tagged variant for message content. Exactly the
// fields for the block's Type are populated; all others are zero.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// redacted_thinking
	Data string `json:"data,omitempty"`

	// tool_use / server_tool_use
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
	Caller *Caller        `json:"caller,omitempty"`

	// tool_result / server_tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   *bool           `json:"is_error,omitempty"`

	// image / document
	Source json.RawMessage `json:"source,omitempty"`
	Title  string          `json:"title,omitempty"`

	CacheControl json.RawMessage `json:"cache_control,omitempty"`
}

// IsThinking reports whether the block is a thinking variant that must
// precede all other blocks in an assistant message.
func (b ContentBlock) IsThinking() bool {
	return b.Type == BlockThinking || b.Type == BlockRedactedThinking
}

// ContentText renders a tool_result content value as plain text, joining
// nested text blocks. Used for logging and the sandbox result path.
func (b ContentBlock) ContentText() string {
	if len(b.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(b.Content, &blocks); err != nil {
		return string(b.Content)
	}
	out := ""
	for _, nb := range blocks {
		if nb.Type == BlockText {
			out += nb.Text
		}
	}
	return out
}

// Caller marks where a tool_use originated: the model directly, or code
// running inside a PTC execution.
type Caller struct {
	Type   string `json:"type"`
	ToolID string `json:"tool_id,omitempty"`
}

// SystemPrompt is the request system field: a string or a list of text
// blocks with optional cache markers.
type SystemPrompt struct {
	Blocks []SystemBlock
	Plain  bool
}

// SystemBlock is one system text block.
type SystemBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	CacheControl json.RawMessage `json:"cache_control,omitempty"`
}

// IsZero reports whether the system field was absent.
func (s SystemPrompt) IsZero() bool { return s.Blocks == nil }

// Append adds text as a trailing system block, preserving the wire shape:
// a plain string grows by concatenation, a block list by a new block.
func (s SystemPrompt) Append(text string) SystemPrompt {
	if s.Plain && len(s.Blocks) == 1 {
		return SystemPrompt{
			Blocks: []SystemBlock{{Type: BlockText, Text: s.Blocks[0].Text + text}},
			Plain:  true,
		}
	}
	if s.Blocks == nil {
		return SystemPrompt{Blocks: []SystemBlock{{Type: BlockText, Text: text}}, Plain: true}
	}
	out := make([]SystemBlock, len(s.Blocks), len(s.Blocks)+1)
	copy(out, s.Blocks)
	return SystemPrompt{Blocks: append(out, SystemBlock{Type: BlockText, Text: text})}
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Blocks = []SystemBlock{{Type: BlockText, Text: str}}
		s.Plain = true
		return nil
	}
	s.Plain = false
	return json.Unmarshal(data, &s.Blocks)
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.Blocks == nil {
		return []byte("null"), nil
	}
	if s.Plain && len(s.Blocks) == 1 {
		return json.Marshal(s.Blocks[0].Text)
	}
	return json.Marshal(s.Blocks)
}

// Tool is a tool definition. Typed server tools (code execution, tool
// search) are recognized by Type; client tools carry a JSON input schema.
type Tool struct {
	Type           string          `json:"type,omitempty"`
	Name           string          `json:"name,omitempty"`
	Description    string          `json:"description,omitempty"`
	InputSchema    map[string]any  `json:"input_schema,omitempty"`
	AllowedCallers []string        `json:"allowed_callers,omitempty"`
	InputExamples  json.RawMessage `json:"input_examples,omitempty"`
	DeferLoading   *bool           `json:"defer_loading,omitempty"`
	CacheControl   json.RawMessage `json:"cache_control,omitempty"`
}

// AllowsCaller reports whether the tool's allowed_callers include the
// given caller type. An absent list means direct-only.
func (t Tool) AllowsCaller(caller string) bool {
	if len(t.AllowedCallers) == 0 {
		return caller == CallerDirect
	}
	for _, c := range t.AllowedCallers {
		if c == caller {
			return true
		}
	}
	return false
}

// ToolChoice is the request tool_choice field.
type ToolChoice struct {
	Type                   string `json:"type"`
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse *bool  `json:"disable_parallel_tool_use,omitempty"`
}

// Response is a Messages API response body.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
	Container    *Container     `json:"container,omitempty"`
}

// Usage reports token consumption for a call.
type Usage struct {
	InputTokens              int  `json:"input_tokens"`
	OutputTokens             int  `json:"output_tokens"`
	CacheCreationInputTokens *int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     *int `json:"cache_read_input_tokens,omitempty"`
	Iterations               *int `json:"iterations,omitempty"`
}

// Add folds another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	if other.CacheCreationInputTokens != nil {
		v := other.CacheCreationInputTokens
		if u.CacheCreationInputTokens != nil {
			sum := *u.CacheCreationInputTokens + *v
			u.CacheCreationInputTokens = &sum
		} else {
			c := *v
			u.CacheCreationInputTokens = &c
		}
	}
	if other.CacheReadInputTokens != nil {
		v := other.CacheReadInputTokens
		if u.CacheReadInputTokens != nil {
			sum := *u.CacheReadInputTokens + *v
			u.CacheReadInputTokens = &sum
		} else {
			c := *v
			u.CacheReadInputTokens = &c
		}
	}
}

// Container identifies the PTC sandbox session bound to a response. The
// client echoes ID on the next turn; requests landing on a node that does
// not hold the session fail rather than silently re-creating it.
type Container struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CountTokensResponse is the count_tokens endpoint body.
type CountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}

// Validate checks the structural requirements the backend cannot express.
func (r *Request) Validate() error {
	if r.Model == "" {
		return NewInvalidRequestError("model is required")
	}
	if r.MaxTokens <= 0 {
		return NewInvalidRequestError("max_tokens must be a positive integer")
	}
	if len(r.Messages) == 0 {
		return NewInvalidRequestError("messages must not be empty")
	}
	for i, m := range r.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return NewInvalidRequestError(fmt.Sprintf("messages[%d].role must be user or assistant", i))
		}
	}
	if r.ToolChoice != nil && r.ToolChoice.Type == "tool" {
		found := false
		for _, t := range r.Tools {
			if t.Name == r.ToolChoice.Name {
				found = true
				break
			}
		}
		if !found {
			return NewInvalidRequestError(fmt.Sprintf("tool_choice references unknown tool %q", r.ToolChoice.Name))
		}
	}
	return nil
}

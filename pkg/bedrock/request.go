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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

// PreparedRequest is a backend-ready request. Exactly one of NativeBody or
// Converse is populated, selected by UseNative.
type PreparedRequest struct {
	ModelID     string
	UseNative   bool
	ServiceTier string
	Betas       []string
	Stream      bool

	// NativeBody is the InvokeModel JSON body (Anthropic Messages shape
	// plus anthropic_version / anthropic_beta / serviceTier).
	NativeBody map[string]any

	// Converse is the typed Converse API input.
	Converse *bedrockruntime.ConverseInput

	// extraFields backs Converse.AdditionalModelRequestFields so the
	// service-tier fallback can rebuild it without the tier.
	extraFields map[string]any
}

// StripServiceTier removes the serviceTier field for the one-shot fallback
// retry. Safe to call on either shape.
func (p *PreparedRequest) StripServiceTier() {
	p.ServiceTier = ""
	if p.NativeBody != nil {
		delete(p.NativeBody, "serviceTier")
	}
	if p.Converse != nil && p.extraFields != nil {
		delete(p.extraFields, "serviceTier")
		if len(p.extraFields) > 0 {
			p.Converse.AdditionalModelRequestFields = document.NewLazyDocument(p.extraFields)
		} else {
			p.Converse.AdditionalModelRequestFields = nil
		}
	}
}

// Prepare converts a Messages request into its backend shape.
//
// Routing: Anthropic-family models use the native InvokeModel shape; other
// models use Converse. A produced beta value that requires InvokeModel
// forces the native shape for Anthropic-family models.
func Prepare(req *anthropic.Request, modelID, betaHeader, serviceTier string) (*PreparedRequest, error) {
	var betas []string
	requiresInvoke := false
	if ModelSupportsBetas(modelID) || ModelSupportsBetas(req.Model) {
		betas, requiresInvoke = ResolveBetas(betaHeader)
	}

	native := IsAnthropicModel(modelID)
	if requiresInvoke && (IsAnthropicModel(modelID) || IsAnthropicModel(req.Model)) {
		native = true
	}

	prep := &PreparedRequest{
		ModelID:     modelID,
		UseNative:   native,
		ServiceTier: serviceTier,
		Betas:       betas,
		Stream:      req.Stream,
	}

	messages := SanitizeMessages(req.Messages)
	if len(messages) == 0 {
		return nil, anthropic.NewInvalidRequestError("messages must contain at least one non-empty message")
	}

	if native {
		body, err := buildNativeBody(req, messages, betas, serviceTier)
		if err != nil {
			return nil, err
		}
		prep.NativeBody = body
		return prep, nil
	}

	input, extras, err := buildConverseInput(req, messages, modelID, betas, serviceTier)
	if err != nil {
		return nil, err
	}
	prep.Converse = input
	prep.extraFields = extras
	return prep, nil
}

// SanitizeMessages applies the transforms every backend call requires:
// strips the private caller field from tool_use blocks, removes
// server_tool_use / server_tool_result blocks from assistant history,
// reorders assistant content so thinking blocks come first, and drops
// messages left with no content.
func SanitizeMessages(messages []anthropic.Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlock, 0, len(msg.Content.Blocks))
		for _, b := range msg.Content.Blocks {
			if msg.Role == anthropic.RoleAssistant &&
				(b.Type == anthropic.BlockServerToolUse || b.Type == anthropic.BlockServerToolResult) {
				continue
			}
			if b.Type == anthropic.BlockToolUse && b.Caller != nil {
				b.Caller = nil
			}
			blocks = append(blocks, b)
		}
		if msg.Role == anthropic.RoleAssistant {
			blocks = reorderThinkingFirst(blocks)
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, anthropic.Message{
			Role:    msg.Role,
			Content: anthropic.MessageContent{Blocks: blocks, Plain: msg.Content.Plain},
		})
	}
	return out
}

// reorderThinkingFirst stably moves thinking and redacted_thinking blocks
// ahead of all other blocks.
func reorderThinkingFirst(blocks []anthropic.ContentBlock) []anthropic.ContentBlock {
	var thinking, rest []anthropic.ContentBlock
	for _, b := range blocks {
		if b.IsThinking() {
			thinking = append(thinking, b)
		} else {
			rest = append(rest, b)
		}
	}
	if len(thinking) == 0 {
		return blocks
	}
	return append(thinking, rest...)
}

// buildNativeBody produces the InvokeModel JSON body. The shape is the
// Messages API request itself with anthropic_version pinned and the model
// and stream fields lifted out.
func buildNativeBody(req *anthropic.Request, messages []anthropic.Message, betas []string, serviceTier string) (map[string]any, error) {
	body := map[string]any{
		"anthropic_version": anthropic.AnthropicVersionBedrock,
		"max_tokens":        req.MaxTokens,
		"messages":          messages,
	}

	if !req.System.IsZero() {
		body["system"] = req.System
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.TopK != nil {
		body["top_k"] = *req.TopK
	}
	if len(req.StopSequences) > 0 {
		body["stop_sequences"] = req.StopSequences
	}

	if tools := transformNativeTools(req.Tools); len(tools) > 0 {
		body["tools"] = tools
	}
	if req.ToolChoice != nil {
		body["tool_choice"] = req.ToolChoice
	}
	if len(req.Thinking) > 0 {
		body["thinking"] = req.Thinking
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}
	if len(req.OutputConfig) > 0 {
		body["output_config"] = req.OutputConfig
	}
	if len(req.ContextManagement) > 0 {
		body["context_management"] = req.ContextManagement
	}
	if len(betas) > 0 {
		body["anthropic_beta"] = betas
	}
	if serviceTier != "" && serviceTier != "default" {
		body["serviceTier"] = map[string]string{"type": serviceTier}
	}
	return body, nil
}

// transformNativeTools applies the tool transforms for the native shape:
// drops code_execution tools (the PTC layer owns those), remaps dated tool
// search types, and strips allowed_callers from client tools while keeping
// schema, examples, defer_loading, and cache markers.
func transformNativeTools(tools []anthropic.Tool) []anthropic.Tool {
	var out []anthropic.Tool
	for _, t := range tools {
		if t.Type == anthropic.ToolTypeCodeExecution {
			continue
		}
		if t.Type != "" {
			mapped := RemapToolType(t.Type)
			if mapped == anthropic.ToolTypeSearchRegexPlain || mapped == anthropic.ToolTypeSearchPlain {
				tc := t
				tc.Type = mapped
				tc.AllowedCallers = nil
				out = append(out, tc)
				continue
			}
		}
		out = append(out, anthropic.Tool{
			Name:          t.Name,
			Description:   t.Description,
			InputSchema:   t.InputSchema,
			InputExamples: t.InputExamples,
			DeferLoading:  t.DeferLoading,
			CacheControl:  t.CacheControl,
		})
	}
	return out
}

// buildConverseInput produces the typed Converse API input plus the
// additionalModelRequestFields map backing it.
func buildConverseInput(req *anthropic.Request, messages []anthropic.Message, modelID string, betas []string, serviceTier string) (*bedrockruntime.ConverseInput, map[string]any, error) {
	converseMessages, err := convertMessagesToConverse(messages)
	if err != nil {
		return nil, nil, err
	}
	if len(converseMessages) == 0 {
		return nil, nil, anthropic.NewInvalidRequestError("no valid messages to send")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: converseMessages,
		InferenceConfig: &bedrocktypes.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(req.MaxTokens)),
		},
	}
	if req.Temperature != nil {
		input.InferenceConfig.Temperature = aws.Float32(float32(*req.Temperature))
	}
	if req.TopP != nil {
		input.InferenceConfig.TopP = aws.Float32(float32(*req.TopP))
	}
	if len(req.StopSequences) > 0 {
		input.InferenceConfig.StopSequences = req.StopSequences
	}

	if systemBlocks := convertSystemToConverse(req.System); len(systemBlocks) > 0 {
		input.System = systemBlocks
	}

	if toolConfig, err := convertToolsToConverse(req.Tools, req.ToolChoice); err != nil {
		return nil, nil, err
	} else if toolConfig != nil {
		input.ToolConfig = toolConfig
	}

	extras := map[string]any{}
	if req.TopK != nil {
		extras["top_k"] = *req.TopK
	}
	addRawField(extras, "thinking", req.Thinking)
	addRawField(extras, "context_management", req.ContextManagement)
	addRawField(extras, "output_config", req.OutputConfig)
	if len(betas) > 0 {
		extras["anthropic_beta"] = betas
	}
	if serviceTier != "" && serviceTier != "default" {
		extras["serviceTier"] = map[string]string{"type": serviceTier}
	}
	if len(extras) > 0 {
		input.AdditionalModelRequestFields = document.NewLazyDocument(extras)
	}
	return input, extras, nil
}

func addRawField(extras map[string]any, key string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil && v != nil {
		extras[key] = v
	}
}

// marshalNativeBody serializes the InvokeModel body. Typed values inside
// the map marshal through their own JSON encoders.
func marshalNativeBody(body map[string]any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal native request body: %w", err)
	}
	return raw, nil
}

// mediaSource is the base64 source shape shared by image and document
// blocks.
type mediaSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// convertMessagesToConverse converts sanitized messages to Converse API
// messages. Cache markers become cachePoint siblings at the same block
// boundary.
func convertMessagesToConverse(messages []anthropic.Message) ([]bedrocktypes.Message, error) {
	var out []bedrocktypes.Message
	for _, msg := range messages {
		role := bedrocktypes.ConversationRoleUser
		if msg.Role == anthropic.RoleAssistant {
			role = bedrocktypes.ConversationRoleAssistant
		}

		var content []bedrocktypes.ContentBlock
		for _, b := range msg.Content.Blocks {
			converted, err := convertBlockToConverse(b)
			if err != nil {
				return nil, err
			}
			if converted != nil {
				content = append(content, converted)
			}
			if len(b.CacheControl) > 0 {
				content = append(content, &bedrocktypes.ContentBlockMemberCachePoint{
					Value: bedrocktypes.CachePointBlock{Type: bedrocktypes.CachePointTypeDefault},
				})
			}
		}
		if len(content) == 0 {
			continue
		}
		out = append(out, bedrocktypes.Message{Role: role, Content: content})
	}
	return out, nil
}

func convertBlockToConverse(b anthropic.ContentBlock) (bedrocktypes.ContentBlock, error) {
	switch b.Type {
	case anthropic.BlockText:
		if b.Text == "" {
			return nil, nil
		}
		return &bedrocktypes.ContentBlockMemberText{Value: b.Text}, nil

	case anthropic.BlockThinking:
		return &bedrocktypes.ContentBlockMemberReasoningContent{
			Value: &bedrocktypes.ReasoningContentBlockMemberReasoningText{
				Value: bedrocktypes.ReasoningTextBlock{
					Text:      aws.String(b.Thinking),
					Signature: aws.String(b.Signature),
				},
			},
		}, nil

	case anthropic.BlockRedactedThinking:
		data, err := base64.StdEncoding.DecodeString(b.Data)
		if err != nil {
			// Opaque bytes may arrive unencoded from older clients.
			data = []byte(b.Data)
		}
		return &bedrocktypes.ContentBlockMemberReasoningContent{
			Value: &bedrocktypes.ReasoningContentBlockMemberRedactedContent{Value: data},
		}, nil

	case anthropic.BlockToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return &bedrocktypes.ContentBlockMemberToolUse{
			Value: bedrocktypes.ToolUseBlock{
				ToolUseId: aws.String(b.ID),
				Name:      aws.String(b.Name),
				Input:     document.NewLazyDocument(input),
			},
		}, nil

	case anthropic.BlockToolResult:
		return convertToolResultToConverse(b)

	case anthropic.BlockImage:
		var src mediaSource
		if err := json.Unmarshal(b.Source, &src); err != nil {
			return nil, anthropic.NewInvalidRequestError(fmt.Sprintf("invalid image source: %v", err))
		}
		raw, err := base64.StdEncoding.DecodeString(src.Data)
		if err != nil {
			return nil, anthropic.NewInvalidRequestError("image data must be base64")
		}
		return &bedrocktypes.ContentBlockMemberImage{
			Value: bedrocktypes.ImageBlock{
				Format: bedrocktypes.ImageFormat(strings.TrimPrefix(src.MediaType, "image/")),
				Source: &bedrocktypes.ImageSourceMemberBytes{Value: raw},
			},
		}, nil

	case anthropic.BlockDocument:
		var src mediaSource
		if err := json.Unmarshal(b.Source, &src); err != nil {
			return nil, anthropic.NewInvalidRequestError(fmt.Sprintf("invalid document source: %v", err))
		}
		raw, err := base64.StdEncoding.DecodeString(src.Data)
		if err != nil {
			return nil, anthropic.NewInvalidRequestError("document data must be base64")
		}
		name := b.Title
		if name == "" {
			name = "document"
		}
		format := bedrocktypes.DocumentFormat(strings.TrimPrefix(src.MediaType, "application/"))
		return &bedrocktypes.ContentBlockMemberDocument{
			Value: bedrocktypes.DocumentBlock{
				Format: format,
				Name:   aws.String(name),
				Source: &bedrocktypes.DocumentSourceMemberBytes{Value: raw},
			},
		}, nil

	case anthropic.BlockCompaction:
		// Compaction summaries re-enter the conversation as plain text.
		if b.Text == "" {
			return nil, nil
		}
		return &bedrocktypes.ContentBlockMemberText{Value: b.Text}, nil

	default:
		return nil, anthropic.NewInvalidRequestError(fmt.Sprintf("unsupported content block type %q for this model", b.Type))
	}
}

func convertToolResultToConverse(b anthropic.ContentBlock) (bedrocktypes.ContentBlock, error) {
	var content []bedrocktypes.ToolResultContentBlock

	if len(b.Content) > 0 {
		var s string
		if err := json.Unmarshal(b.Content, &s); err == nil {
			content = append(content, &bedrocktypes.ToolResultContentBlockMemberText{Value: s})
		} else {
			var nested []anthropic.ContentBlock
			if err := json.Unmarshal(b.Content, &nested); err != nil {
				return nil, anthropic.NewInvalidRequestError("invalid tool_result content")
			}
			for _, nb := range nested {
				switch nb.Type {
				case anthropic.BlockText:
					content = append(content, &bedrocktypes.ToolResultContentBlockMemberText{Value: nb.Text})
				case anthropic.BlockImage:
					var src mediaSource
					if err := json.Unmarshal(nb.Source, &src); err != nil {
						return nil, anthropic.NewInvalidRequestError("invalid tool_result image source")
					}
					raw, err := base64.StdEncoding.DecodeString(src.Data)
					if err != nil {
						return nil, anthropic.NewInvalidRequestError("tool_result image data must be base64")
					}
					content = append(content, &bedrocktypes.ToolResultContentBlockMemberImage{
						Value: bedrocktypes.ImageBlock{
							Format: bedrocktypes.ImageFormat(strings.TrimPrefix(src.MediaType, "image/")),
							Source: &bedrocktypes.ImageSourceMemberBytes{Value: raw},
						},
					})
				}
			}
		}
	}
	if len(content) == 0 {
		content = append(content, &bedrocktypes.ToolResultContentBlockMemberText{Value: ""})
	}

	result := bedrocktypes.ToolResultBlock{
		ToolUseId: aws.String(b.ToolUseID),
		Content:   content,
	}
	if b.IsError != nil && *b.IsError {
		result.Status = bedrocktypes.ToolResultStatusError
	}
	return &bedrocktypes.ContentBlockMemberToolResult{Value: result}, nil
}

// convertSystemToConverse maps the system field to Converse system blocks,
// projecting cache markers onto cachePoint siblings.
func convertSystemToConverse(system anthropic.SystemPrompt) []bedrocktypes.SystemContentBlock {
	var out []bedrocktypes.SystemContentBlock
	for _, sb := range system.Blocks {
		if sb.Text != "" {
			out = append(out, &bedrocktypes.SystemContentBlockMemberText{Value: sb.Text})
		}
		if len(sb.CacheControl) > 0 {
			out = append(out, &bedrocktypes.SystemContentBlockMemberCachePoint{
				Value: bedrocktypes.CachePointBlock{Type: bedrocktypes.CachePointTypeDefault},
			})
		}
	}
	return out
}

// convertToolsToConverse builds the Converse tool configuration. Typed
// server tools have no Converse equivalent and are dropped; PTC code
// execution tools never reach this path.
func convertToolsToConverse(tools []anthropic.Tool, choice *anthropic.ToolChoice) (*bedrocktypes.ToolConfiguration, error) {
	var converseTools []bedrocktypes.Tool
	for _, t := range tools {
		if t.Type != "" {
			continue
		}
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		converseTools = append(converseTools, &bedrocktypes.ToolMemberToolSpec{
			Value: bedrocktypes.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schema),
				},
			},
		})
		if len(t.CacheControl) > 0 {
			converseTools = append(converseTools, &bedrocktypes.ToolMemberCachePoint{
				Value: bedrocktypes.CachePointBlock{Type: bedrocktypes.CachePointTypeDefault},
			})
		}
	}
	if len(converseTools) == 0 {
		return nil, nil
	}

	cfg := &bedrocktypes.ToolConfiguration{Tools: converseTools}
	if choice != nil {
		switch choice.Type {
		case "auto", "":
			cfg.ToolChoice = &bedrocktypes.ToolChoiceMemberAuto{Value: bedrocktypes.AutoToolChoice{}}
		case "any":
			cfg.ToolChoice = &bedrocktypes.ToolChoiceMemberAny{Value: bedrocktypes.AnyToolChoice{}}
		case "tool":
			cfg.ToolChoice = &bedrocktypes.ToolChoiceMemberTool{
				Value: bedrocktypes.SpecificToolChoice{Name: aws.String(choice.Name)},
			}
		default:
			return nil, anthropic.NewInvalidRequestError(fmt.Sprintf("unsupported tool_choice type %q", choice.Type))
		}
	}
	return cfg, nil
}

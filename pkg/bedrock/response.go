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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

// ConvertConverseResponse maps a Converse API output onto a Messages API
// response. Content blocks map 1:1; Bedrock stop reasons map to their
// Anthropic equivalents.
func ConvertConverseResponse(output *bedrockruntime.ConverseOutput, model, messageID string) (*anthropic.Response, error) {
	resp := &anthropic.Response{
		ID:         messageID,
		Type:       "message",
		Role:       anthropic.RoleAssistant,
		Model:      model,
		StopReason: mapStopReason(output.StopReason),
	}

	if output.Output != nil {
		msg, ok := output.Output.(*bedrocktypes.ConverseOutputMemberMessage)
		if !ok {
			return nil, fmt.Errorf("unexpected converse output type %T", output.Output)
		}
		for _, block := range msg.Value.Content {
			converted, err := convertConverseBlock(block)
			if err != nil {
				return nil, err
			}
			if converted != nil {
				resp.Content = append(resp.Content, *converted)
			}
		}
	}
	if resp.Content == nil {
		resp.Content = []anthropic.ContentBlock{}
	}

	if output.Usage != nil {
		resp.Usage = convertTokenUsage(output.Usage)
	}
	return resp, nil
}

func convertConverseBlock(block bedrocktypes.ContentBlock) (*anthropic.ContentBlock, error) {
	switch b := block.(type) {
	case *bedrocktypes.ContentBlockMemberText:
		return &anthropic.ContentBlock{Type: anthropic.BlockText, Text: b.Value}, nil

	case *bedrocktypes.ContentBlockMemberToolUse:
		out := anthropic.ContentBlock{
			Type:  anthropic.BlockToolUse,
			ID:    aws.ToString(b.Value.ToolUseId),
			Name:  aws.ToString(b.Value.Name),
			Input: map[string]any{},
		}
		if b.Value.Input != nil {
			raw, err := json.Marshal(b.Value.Input)
			if err == nil {
				_ = json.Unmarshal(raw, &out.Input)
			}
		}
		return &out, nil

	case *bedrocktypes.ContentBlockMemberReasoningContent:
		switch r := b.Value.(type) {
		case *bedrocktypes.ReasoningContentBlockMemberReasoningText:
			return &anthropic.ContentBlock{
				Type:      anthropic.BlockThinking,
				Thinking:  aws.ToString(r.Value.Text),
				Signature: aws.ToString(r.Value.Signature),
			}, nil
		case *bedrocktypes.ReasoningContentBlockMemberRedactedContent:
			return &anthropic.ContentBlock{
				Type: anthropic.BlockRedactedThinking,
				Data: base64.StdEncoding.EncodeToString(r.Value),
			}, nil
		}
		return nil, nil

	default:
		// Unknown union members from newer API versions are skipped
		// rather than failing the whole response.
		return nil, nil
	}
}

func convertTokenUsage(u *bedrocktypes.TokenUsage) anthropic.Usage {
	usage := anthropic.Usage{
		InputTokens:  int(aws.ToInt32(u.InputTokens)),
		OutputTokens: int(aws.ToInt32(u.OutputTokens)),
	}
	if u.CacheReadInputTokens != nil {
		v := int(*u.CacheReadInputTokens)
		usage.CacheReadInputTokens = &v
	}
	if u.CacheWriteInputTokens != nil {
		v := int(*u.CacheWriteInputTokens)
		usage.CacheCreationInputTokens = &v
	}
	return usage
}

// mapStopReason maps Bedrock stopReason values onto the Anthropic
// taxonomy.
func mapStopReason(reason bedrocktypes.StopReason) string {
	switch reason {
	case bedrocktypes.StopReasonEndTurn:
		return anthropic.StopEndTurn
	case bedrocktypes.StopReasonMaxTokens:
		return anthropic.StopMaxTokens
	case bedrocktypes.StopReasonStopSequence:
		return anthropic.StopStopSequence
	case bedrocktypes.StopReasonToolUse:
		return anthropic.StopToolUse
	default:
		return anthropic.StopEndTurn
	}
}

// ParseNativeResponse decodes an InvokeModel response body, which is
// already Anthropic-shaped, overriding id and model with gateway values.
func ParseNativeResponse(body []byte, model, messageID string) (*anthropic.Response, error) {
	var resp anthropic.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode native response: %w", err)
	}
	resp.Type = "message"
	if resp.Role == "" {
		resp.Role = anthropic.RoleAssistant
	}
	if resp.ID == "" {
		resp.ID = messageID
	}
	resp.Model = model
	if resp.Content == nil {
		resp.Content = []anthropic.ContentBlock{}
	}
	return &resp, nil
}

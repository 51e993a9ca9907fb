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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

// Per-block token charges for the estimator.
const (
	imageTokens    = 85
	documentTokens = 250
	// framingOverhead compensates for message framing the estimator
	// cannot see.
	framingOverhead = 1.05
)

// cjkRanges are the Unicode ranges counted as one token per character.
var cjkRanges = [][2]rune{
	{0x4E00, 0x9FFF},   // CJK Unified Ideographs
	{0x3400, 0x4DBF},   // CJK Extension A
	{0x20000, 0x2A6DF}, // CJK Extension B
	{0x2A700, 0x2B73F}, // CJK Extension C
	{0x2B740, 0x2B81F}, // CJK Extension D
	{0x2B820, 0x2CEAF}, // CJK Extension E
	{0xF900, 0xFAFF},   // CJK Compatibility Ideographs
	{0x2F800, 0x2FA1F}, // CJK Compatibility Supplement
	{0x3040, 0x309F},   // Hiragana
	{0x30A0, 0x30FF},   // Katakana
	{0xAC00, 0xD7AF},   // Hangul Syllables
}

// isCJK reports whether the rune falls in a CJK range.
func isCJK(r rune) bool {
	for _, rng := range cjkRanges {
		if r >= rng[0] && r <= rng[1] {
			return true
		}
	}
	return false
}

// CountTokens returns the input token count for a request. Anthropic
// family models use the backend count_tokens endpoint with the Converse
// request shape; other models, a zero answer, or a backend failure fall
// back to the deterministic estimator.
func (c *Client) CountTokens(ctx context.Context, req *anthropic.Request, modelID string) (int, error) {
	if IsAnthropicModel(modelID) {
		count, err := c.countTokensAPI(ctx, req, modelID)
		if err != nil {
			c.logger.Warn("count_tokens API failed, using estimator",
				zap.String("model", modelID), zap.Error(err))
		} else if count > 0 {
			return count, nil
		}
	}
	return EstimateTokens(req), nil
}

// countTokensAPI calls the Bedrock CountTokens endpoint with the same
// Converse-shaped request, minus inference config.
func (c *Client) countTokensAPI(ctx context.Context, req *anthropic.Request, modelID string) (int, error) {
	messages, err := convertMessagesToConverse(SanitizeMessages(req.Messages))
	if err != nil {
		return 0, err
	}

	converseReq := bedrocktypes.ConverseTokensRequest{Messages: messages}
	if system := convertSystemToConverse(req.System); len(system) > 0 {
		converseReq.System = system
	}
	if toolConfig, err := convertToolsToConverse(req.Tools, nil); err == nil && toolConfig != nil {
		converseReq.ToolConfig = toolConfig
	}

	output, err := c.client.CountTokens(ctx, &bedrockruntime.CountTokensInput{
		ModelId: aws.String(modelID),
		Input:   &bedrocktypes.CountTokensInputMemberConverse{Value: converseReq},
	})
	if err != nil {
		return 0, err
	}
	return int(aws.ToInt32(output.InputTokens)), nil
}

// EstimateTokens deterministically estimates the input token count: CJK
// characters cost one token, other characters a quarter token floored per
// text, plus flat charges for images and documents, all scaled by a small
// framing overhead. The result is never below 1.
func EstimateTokens(req *anthropic.Request) int {
	total := 0

	for _, sb := range req.System.Blocks {
		total += estimateText(sb.Text)
	}
	for _, msg := range req.Messages {
		for _, b := range msg.Content.Blocks {
			switch b.Type {
			case anthropic.BlockText:
				total += estimateText(b.Text)
			case anthropic.BlockThinking:
				total += estimateText(b.Thinking)
			case anthropic.BlockToolUse, anthropic.BlockServerToolUse:
				total += estimateText(b.Name)
				for _, v := range b.Input {
					if s, ok := v.(string); ok {
						total += estimateText(s)
					}
				}
			case anthropic.BlockToolResult, anthropic.BlockServerToolResult:
				total += estimateText(b.ContentText())
			case anthropic.BlockImage:
				total += imageTokens
			case anthropic.BlockDocument:
				total += documentTokens
			}
		}
	}
	for _, t := range req.Tools {
		total += estimateText(t.Name)
		total += estimateText(t.Description)
	}

	total = int(float64(total) * framingOverhead)
	if total < 1 {
		return 1
	}
	return total
}

// estimateText scores one text: CJK runes count 1, the rest count 1/4
// floored.
func estimateText(s string) int {
	if s == "" {
		return 0
	}
	cjk, other := 0, 0
	for _, r := range s {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return cjk + other/4
}

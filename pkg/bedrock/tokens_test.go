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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

func reqWithText(text string) *anthropic.Request {
	return &anthropic.Request{
		Model:     "amazon.titan-text-express-v1",
		MaxTokens: 16,
		Messages:  []anthropic.Message{{Role: anthropic.RoleUser, Content: anthropic.TextContent(text)}},
	}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	t.Run("never below one", func(t *testing.T) {
		assert.Equal(t, 1, EstimateTokens(reqWithText("")))
		assert.GreaterOrEqual(t, EstimateTokens(reqWithText("a")), 1)
	})

	t.Run("cjk weighs more than latin", func(t *testing.T) {
		latin := EstimateTokens(reqWithText(strings.Repeat("a", 40)))
		cjk := EstimateTokens(reqWithText(strings.Repeat("中", 40)))
		assert.Greater(t, cjk, latin)
	})

	t.Run("hiragana katakana hangul count as cjk", func(t *testing.T) {
		for _, s := range []string{"あ", "ア", "가"} {
			assert.True(t, isCJK([]rune(s)[0]), s)
		}
		assert.False(t, isCJK('a'))
		assert.False(t, isCJK('1'))
	})

	t.Run("monotone in added characters", func(t *testing.T) {
		text := ""
		prev := EstimateTokens(reqWithText(text))
		for _, chunk := range []string{"hello", " world", "中文", "!!!", strings.Repeat("x", 100)} {
			text += chunk
			next := EstimateTokens(reqWithText(text))
			assert.GreaterOrEqual(t, next, prev, "after adding %q", chunk)
			prev = next
		}
	})

	t.Run("tools and system contribute", func(t *testing.T) {
		base := reqWithText("hello world, this is a prompt")
		bare := EstimateTokens(base)

		withExtras := *base
		withExtras.System = anthropic.SystemPrompt{
			Blocks: []anthropic.SystemBlock{{Type: anthropic.BlockText, Text: strings.Repeat("system prompt ", 10)}},
		}
		withExtras.Tools = []anthropic.Tool{{
			Name:        "get_weather",
			Description: strings.Repeat("fetches the weather ", 10),
		}}
		assert.Greater(t, EstimateTokens(&withExtras), bare)
	})

	t.Run("images and documents are flat charges", func(t *testing.T) {
		img := reqWithText("x")
		img.Messages = append(img.Messages, anthropic.Message{
			Role:    anthropic.RoleUser,
			Content: anthropic.BlockContent(anthropic.ContentBlock{Type: anthropic.BlockImage}),
		})
		assert.Greater(t, EstimateTokens(img), EstimateTokens(reqWithText("x")))
	})
}

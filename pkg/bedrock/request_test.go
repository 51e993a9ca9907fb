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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

func baseRequest() *anthropic.Request {
	return &anthropic.Request{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 128,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: anthropic.TextContent("hi")},
		},
	}
}

func TestPrepareRouting(t *testing.T) {
	t.Parallel()

	t.Run("anthropic family routes native", func(t *testing.T) {
		prep, err := Prepare(baseRequest(), "global.anthropic.claude-sonnet-4-5-20250929-v1:0", "", "default")
		require.NoError(t, err)
		assert.True(t, prep.UseNative)
		require.NotNil(t, prep.NativeBody)
		assert.Nil(t, prep.Converse)
		assert.Equal(t, anthropic.AnthropicVersionBedrock, prep.NativeBody["anthropic_version"])
	})

	t.Run("other models route converse", func(t *testing.T) {
		req := baseRequest()
		req.Model = "amazon.titan-text-express-v1"
		prep, err := Prepare(req, "amazon.titan-text-express-v1", "", "default")
		require.NoError(t, err)
		assert.False(t, prep.UseNative)
		require.NotNil(t, prep.Converse)
		assert.Nil(t, prep.NativeBody)
	})

	t.Run("invoke-model beta forces native on supported model", func(t *testing.T) {
		req := baseRequest()
		req.Model = "claude-opus-4-6"
		prep, err := Prepare(req, "global.anthropic.claude-opus-4-6-v1", BetaAdvancedToolUse, "default")
		require.NoError(t, err)
		assert.True(t, prep.UseNative)
		assert.Contains(t, prep.Betas, "tool-examples-2025-10-29")
	})

	t.Run("betas ignored for unsupported model", func(t *testing.T) {
		prep, err := Prepare(baseRequest(), "global.anthropic.claude-sonnet-4-5-20250929-v1:0", BetaAdvancedToolUse, "default")
		require.NoError(t, err)
		assert.Empty(t, prep.Betas)
	})

	t.Run("empty sanitized messages rejected", func(t *testing.T) {
		req := baseRequest()
		req.Messages = []anthropic.Message{{
			Role: anthropic.RoleAssistant,
			Content: anthropic.BlockContent(
				anthropic.ContentBlock{Type: anthropic.BlockServerToolUse, ID: "srvtoolu_x", Name: "code_execution"},
			),
		}}
		_, err := Prepare(req, "global.anthropic.claude-sonnet-4-5-20250929-v1:0", "", "default")
		require.Error(t, err)
		assert.ErrorContains(t, err, "non-empty")
	})
}

func TestStripServiceTier(t *testing.T) {
	t.Parallel()

	prep, err := Prepare(baseRequest(), "global.anthropic.claude-sonnet-4-5-20250929-v1:0", "", "priority")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"type": "priority"}, prep.NativeBody["serviceTier"])

	prep.StripServiceTier()
	assert.Empty(t, prep.ServiceTier)
	_, present := prep.NativeBody["serviceTier"]
	assert.False(t, present)
}

func TestSanitizeMessages(t *testing.T) {
	t.Parallel()

	isErr := false
	messages := []anthropic.Message{
		{Role: anthropic.RoleUser, Content: anthropic.TextContent("run it")},
		{
			Role: anthropic.RoleAssistant,
			Content: anthropic.BlockContent(
				anthropic.ContentBlock{Type: anthropic.BlockText, Text: "calling"},
				anthropic.ContentBlock{Type: anthropic.BlockThinking, Thinking: "let me think", Signature: "sig"},
				anthropic.ContentBlock{Type: anthropic.BlockServerToolUse, ID: "srvtoolu_1", Name: "code_execution"},
				anthropic.ContentBlock{
					Type: anthropic.BlockToolUse, ID: "toolu_1", Name: "get_weather",
					Caller: &anthropic.Caller{Type: anthropic.CallerDirect},
				},
			),
		},
		{
			Role: anthropic.RoleUser,
			Content: anthropic.BlockContent(
				anthropic.ContentBlock{Type: anthropic.BlockToolResult, ToolUseID: "toolu_1", Content: []byte(`"sunny"`), IsError: &isErr},
			),
		},
	}

	out := SanitizeMessages(messages)
	require.Len(t, out, 3)

	assistant := out[1]
	require.Len(t, assistant.Content.Blocks, 3)

	// Thinking first, server_tool_use gone, caller stripped.
	assert.Equal(t, anthropic.BlockThinking, assistant.Content.Blocks[0].Type)
	assert.Equal(t, anthropic.BlockText, assistant.Content.Blocks[1].Type)
	assert.Equal(t, anthropic.BlockToolUse, assistant.Content.Blocks[2].Type)
	assert.Nil(t, assistant.Content.Blocks[2].Caller)
}

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
)

func TestIsAnthropicModel(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAnthropicModel("claude-sonnet-4-5-20250929"))
	assert.True(t, IsAnthropicModel("global.anthropic.claude-opus-4-6-v1"))
	assert.True(t, IsAnthropicModel("us.anthropic.claude-3-5-haiku-20241022-v1:0"))
	assert.False(t, IsAnthropicModel("amazon.titan-text-express-v1"))
	assert.False(t, IsAnthropicModel("cohere.command-r-v1:0"))
}

func TestResolveBetas(t *testing.T) {
	t.Parallel()

	t.Run("empty header", func(t *testing.T) {
		betas, requiresInvoke := ResolveBetas("")
		assert.Nil(t, betas)
		assert.False(t, requiresInvoke)
	})

	t.Run("advanced tool use expands and requires invoke", func(t *testing.T) {
		betas, requiresInvoke := ResolveBetas(BetaAdvancedToolUse)
		assert.Equal(t, []string{"tool-examples-2025-10-29", "tool-search-tool-2025-10-19"}, betas)
		assert.True(t, requiresInvoke)
	})

	t.Run("passthrough forwards unchanged", func(t *testing.T) {
		betas, requiresInvoke := ResolveBetas("interleaved-thinking-2025-05-14")
		assert.Equal(t, []string{"interleaved-thinking-2025-05-14"}, betas)
		assert.False(t, requiresInvoke)
	})

	t.Run("blocklisted values drop", func(t *testing.T) {
		betas, _ := ResolveBetas("prompt-caching-scope-2026-01-05")
		assert.Empty(t, betas)
	})

	t.Run("unknown values forward", func(t *testing.T) {
		betas, requiresInvoke := ResolveBetas("some-future-beta-2027-01-01")
		assert.Equal(t, []string{"some-future-beta-2027-01-01"}, betas)
		assert.False(t, requiresInvoke)
	})

	t.Run("mixed header dedupes and trims", func(t *testing.T) {
		betas, requiresInvoke := ResolveBetas(
			BetaAdvancedToolUse + " , interleaved-thinking-2025-05-14, prompt-caching-scope-2026-01-05,,tool-examples-2025-10-29")
		assert.Equal(t, []string{
			"tool-examples-2025-10-29",
			"tool-search-tool-2025-10-19",
			"interleaved-thinking-2025-05-14",
		}, betas)
		assert.True(t, requiresInvoke)
	})
}

func TestHasBeta(t *testing.T) {
	t.Parallel()

	assert.True(t, HasBeta("a, "+BetaAdvancedToolUse+" ,b", BetaAdvancedToolUse))
	assert.False(t, HasBeta("advanced-tool-use", BetaAdvancedToolUse))
	assert.False(t, HasBeta("", BetaAdvancedToolUse))
}

func TestRemapToolType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tool_search_tool_regex", RemapToolType("tool_search_tool_regex_20251119"))
	assert.Equal(t, "tool_search_tool", RemapToolType("tool_search_tool_20251119"))
	assert.Equal(t, "code_execution_20250825", RemapToolType("code_execution_20250825"))
}

func TestModelSupportsBetas(t *testing.T) {
	t.Parallel()

	assert.True(t, ModelSupportsBetas("claude-opus-4-6"))
	assert.True(t, ModelSupportsBetas("global.anthropic.claude-opus-4-5-20251101-v1:0"))
	assert.False(t, ModelSupportsBetas("claude-3-5-haiku-20241022"))
}

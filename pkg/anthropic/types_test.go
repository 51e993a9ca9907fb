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

package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageContentUnmarshal(t *testing.T) {
	t.Parallel()

	t.Run("plain string", func(t *testing.T) {
		var c MessageContent
		require.NoError(t, json.Unmarshal([]byte(`"hello"`), &c))
		assert.True(t, c.Plain)
		require.Len(t, c.Blocks, 1)
		assert.Equal(t, BlockText, c.Blocks[0].Type)
		assert.Equal(t, "hello", c.Blocks[0].Text)

		// Round-trips back to the string form.
		out, err := json.Marshal(c)
		require.NoError(t, err)
		assert.JSONEq(t, `"hello"`, string(out))
	})

	t.Run("block list", func(t *testing.T) {
		var c MessageContent
		require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"hi"},{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{"city":"Oslo"}}]`), &c))
		assert.False(t, c.Plain)
		require.Len(t, c.Blocks, 2)
		assert.Equal(t, BlockToolUse, c.Blocks[1].Type)
		assert.Equal(t, "Oslo", c.Blocks[1].Input["city"])
	})
}

func TestSystemPromptAppend(t *testing.T) {
	t.Parallel()

	t.Run("plain string grows by concatenation", func(t *testing.T) {
		var s SystemPrompt
		require.NoError(t, json.Unmarshal([]byte(`"base"`), &s))

		out := s.Append("\n\nextra")

		assert.True(t, out.Plain)
		require.Len(t, out.Blocks, 1)
		assert.Equal(t, "base\n\nextra", out.Blocks[0].Text)
	})

	t.Run("block list grows by new block", func(t *testing.T) {
		var s SystemPrompt
		require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"base","cache_control":{"type":"ephemeral"}}]`), &s))

		out := s.Append("extra")

		require.Len(t, out.Blocks, 2)
		assert.Equal(t, "base", out.Blocks[0].Text)
		assert.NotNil(t, out.Blocks[0].CacheControl)
		assert.Equal(t, "extra", out.Blocks[1].Text)
	})

	t.Run("absent system becomes single block", func(t *testing.T) {
		var s SystemPrompt
		assert.True(t, s.IsZero())

		out := s.Append("only")
		require.Len(t, out.Blocks, 1)
		assert.Equal(t, "only", out.Blocks[0].Text)
	})
}

func TestToolAllowsCaller(t *testing.T) {
	t.Parallel()

	direct := Tool{Name: "lookup"}
	assert.True(t, direct.AllowsCaller(CallerDirect))
	assert.False(t, direct.AllowsCaller(CallerCodeExecution))

	callable := Tool{Name: "lookup", AllowedCallers: []string{CallerCodeExecution}}
	assert.True(t, callable.AllowsCaller(CallerCodeExecution))
	assert.False(t, callable.AllowsCaller(CallerDirect))

	both := Tool{Name: "lookup", AllowedCallers: []string{CallerDirect, CallerCodeExecution}}
	assert.True(t, both.AllowsCaller(CallerDirect))
	assert.True(t, both.AllowsCaller(CallerCodeExecution))
}

func TestUsageAdd(t *testing.T) {
	t.Parallel()

	read := 7
	var u Usage
	u.Add(Usage{InputTokens: 10, OutputTokens: 5})
	u.Add(Usage{InputTokens: 3, OutputTokens: 2, CacheReadInputTokens: &read})

	assert.Equal(t, 13, u.InputTokens)
	assert.Equal(t, 7, u.OutputTokens)
	require.NotNil(t, u.CacheReadInputTokens)
	assert.Equal(t, 7, *u.CacheReadInputTokens)
	assert.Nil(t, u.CacheCreationInputTokens)
}

func TestContentText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"string content", `"plain result"`, "plain result"},
		{"text blocks", `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, "ab"},
		{"mixed blocks keep text only", `[{"type":"text","text":"x"},{"type":"image","source":{}}]`, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ContentBlock{Type: BlockToolResult, Content: json.RawMessage(tt.content)}
			assert.Equal(t, tt.want, b.ContentText())
		})
	}
}

func TestRequestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Request {
		return &Request{
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 64,
			Messages:  []Message{{Role: RoleUser, Content: TextContent("hi")}},
		}
	}

	assert.NoError(t, valid().Validate())

	r := valid()
	r.Model = ""
	assert.ErrorContains(t, r.Validate(), "model")

	r = valid()
	r.MaxTokens = 0
	assert.ErrorContains(t, r.Validate(), "max_tokens")

	r = valid()
	r.Messages = nil
	assert.ErrorContains(t, r.Validate(), "messages")

	r = valid()
	r.Messages[0].Role = "system"
	assert.ErrorContains(t, r.Validate(), "role")

	r = valid()
	r.ToolChoice = &ToolChoice{Type: "tool", Name: "missing"}
	assert.ErrorContains(t, r.Validate(), "unknown tool")
}

func TestAPIErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind   string
		status int
	}{
		{ErrAuthentication, 401},
		{ErrPermission, 403},
		{ErrBudgetExceeded, 402},
		{ErrInvalidRequest, 400},
		{ErrRateLimit, 429},
		{ErrNotFound, 404},
		{ErrAPI, 500},
		{ErrServiceUnavailable, 503},
		{ErrPTCSessionNotFound, 409},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.status, NewError(tt.kind, "x").Status())
		})
	}

	body, err := json.Marshal(NewError(ErrInvalidRequest, "bad field").Body())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","error":{"type":"invalid_request_error","message":"bad field"}}`, string(body))
}

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

package server

import (
	"context"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

// TestAnthropicSDKCompatibility drives the gateway with the official Go
// SDK: a stock client pointed at the gateway must round-trip without any
// translation shims on the client side.
func TestAnthropicSDKCompatibility(t *testing.T) {
	t.Parallel()

	invoker := &fakeInvoker{resp: &anthropic.Response{
		ID:   "msg_sdk",
		Type: "message",
		Role: anthropic.RoleAssistant,
		Content: []anthropic.ContentBlock{
			{Type: anthropic.BlockText, Text: "from the gateway"},
		},
		Model:      "claude-sonnet-4-5-20250929",
		StopReason: anthropic.StopEndTurn,
		Usage:      anthropic.Usage{InputTokens: 12, OutputTokens: 4},
	}}
	srv, _ := newTestServer(t, testConfig(t), invoker)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := sdk.NewClient(
		option.WithAPIKey(masterKey),
		option.WithBaseURL(ts.URL),
		option.WithMaxRetries(0),
	)

	msg, err := client.Messages.New(context.Background(), sdk.MessageNewParams{
		Model:     sdk.Model("claude-sonnet-4-5-20250929"),
		MaxTokens: 64,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock("hello")),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_sdk", msg.ID)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "from the gateway", msg.Content[0].Text)
	assert.Equal(t, sdk.StopReasonEndTurn, msg.StopReason)
	assert.Equal(t, int64(12), msg.Usage.InputTokens)
	assert.Equal(t, int64(4), msg.Usage.OutputTokens)

	t.Run("gateway errors surface as sdk errors", func(t *testing.T) {
		invoker.err = anthropic.NewError(anthropic.ErrNotFound, "model not found")
		defer func() { invoker.err = nil }()

		_, err := client.Messages.New(context.Background(), sdk.MessageNewParams{
			Model:     sdk.Model("claude-sonnet-4-5-20250929"),
			MaxTokens: 64,
			Messages: []sdk.MessageParam{
				sdk.NewUserMessage(sdk.NewTextBlock("hello")),
			},
		})
		require.Error(t, err)

		var apiErr *sdk.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 404, apiErr.StatusCode)
	})
}

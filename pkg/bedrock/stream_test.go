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
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

type fakeConverseStream struct {
	events chan bedrocktypes.ConverseStreamOutput
	err    error
}

func (f *fakeConverseStream) Events() <-chan bedrocktypes.ConverseStreamOutput { return f.events }
func (f *fakeConverseStream) Err() error                                      { return f.err }

type fakeNativeStream struct {
	events chan bedrocktypes.ResponseStream
	err    error
}

func (f *fakeNativeStream) Events() <-chan bedrocktypes.ResponseStream { return f.events }
func (f *fakeNativeStream) Err() error                                 { return f.err }

func collectItems(t *testing.T, out <-chan StreamItem) []StreamItem {
	t.Helper()
	var items []StreamItem
	for item := range out {
		items = append(items, item)
	}
	return items
}

func eventNames(items []StreamItem) []string {
	var names []string
	for _, item := range items {
		if item.Event != nil {
			names = append(names, item.Event.Name)
		}
	}
	return names
}

func TestBridgeConverseStream(t *testing.T) {
	t.Parallel()

	t.Run("synthesizes start for orphan delta", func(t *testing.T) {
		stream := &fakeConverseStream{events: make(chan bedrocktypes.ConverseStreamOutput, 8)}
		stream.events <- &bedrocktypes.ConverseStreamOutputMemberContentBlockDelta{
			Value: bedrocktypes.ContentBlockDeltaEvent{
				ContentBlockIndex: aws.Int32(0),
				Delta:             &bedrocktypes.ContentBlockDeltaMemberText{Value: "hello"},
			},
		}
		stream.events <- &bedrocktypes.ConverseStreamOutputMemberContentBlockStop{
			Value: bedrocktypes.ContentBlockStopEvent{ContentBlockIndex: aws.Int32(0)},
		}
		stream.events <- &bedrocktypes.ConverseStreamOutputMemberMessageStop{
			Value: bedrocktypes.MessageStopEvent{StopReason: bedrocktypes.StopReasonEndTurn},
		}
		stream.events <- &bedrocktypes.ConverseStreamOutputMemberMetadata{
			Value: bedrocktypes.ConverseStreamMetadataEvent{
				Usage: &bedrocktypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5)},
			},
		}
		close(stream.events)

		out := make(chan StreamItem, 16)
		bridgeConverseStream(context.Background(), stream, "claude-sonnet-4-5-20250929", "msg_test", zaptest.NewLogger(t), out)

		items := collectItems(t, out)
		assert.Equal(t, []string{
			anthropic.EventMessageStart,
			anthropic.EventContentBlockStart,
			anthropic.EventContentBlockDelta,
			anthropic.EventContentBlockStop,
			anthropic.EventMessageDelta,
			anthropic.EventMessageStop,
		}, eventNames(items))

		// The synthesized start is a text block at the delta's index.
		start := items[1].Event.Data.(anthropic.ContentBlockStartEvent)
		assert.Equal(t, 0, start.Index)
		assert.Equal(t, anthropic.BlockText, start.ContentBlock.Type)

		// Usage from the metadata event lands in message_delta.
		delta := items[4].Event.Data.(anthropic.MessageDeltaEvent)
		assert.Equal(t, 5, delta.Usage.OutputTokens)
		assert.Equal(t, anthropic.StopEndTurn, delta.Delta.StopReason)
	})

	t.Run("every started index gets exactly one stop", func(t *testing.T) {
		stream := &fakeConverseStream{events: make(chan bedrocktypes.ConverseStreamOutput, 16)}
		for i := int32(0); i < 3; i++ {
			stream.events <- &bedrocktypes.ConverseStreamOutputMemberContentBlockStart{
				Value: bedrocktypes.ContentBlockStartEvent{ContentBlockIndex: aws.Int32(i)},
			}
			stream.events <- &bedrocktypes.ConverseStreamOutputMemberContentBlockStop{
				Value: bedrocktypes.ContentBlockStopEvent{ContentBlockIndex: aws.Int32(i)},
			}
		}
		close(stream.events)

		out := make(chan StreamItem, 32)
		bridgeConverseStream(context.Background(), stream, "m", "msg_test", zaptest.NewLogger(t), out)

		starts := map[int]int{}
		stops := map[int]int{}
		for _, item := range collectItems(t, out) {
			switch data := item.Event.Data.(type) {
			case anthropic.ContentBlockStartEvent:
				starts[data.Index]++
			case anthropic.ContentBlockStopEvent:
				stops[data.Index]++
			}
		}
		assert.Equal(t, starts, stops)
		for index, n := range stops {
			assert.Equal(t, 1, n, "index %d", index)
		}
	})

	t.Run("stream error surfaces as final item", func(t *testing.T) {
		stream := &fakeConverseStream{
			events: make(chan bedrocktypes.ConverseStreamOutput),
			err:    assert.AnError,
		}
		close(stream.events)

		out := make(chan StreamItem, 4)
		bridgeConverseStream(context.Background(), stream, "m", "msg_test", zaptest.NewLogger(t), out)

		items := collectItems(t, out)
		require.NotEmpty(t, items)
		last := items[len(items)-1]
		require.Error(t, last.Err)
		apiErr := anthropic.AsAPIError(last.Err)
		assert.Equal(t, anthropic.ErrAPI, apiErr.Kind)
	})
}

func TestBridgeNativeStream(t *testing.T) {
	t.Parallel()

	stream := &fakeNativeStream{events: make(chan bedrocktypes.ResponseStream, 8)}
	stream.events <- &bedrocktypes.ResponseStreamMemberChunk{
		Value: bedrocktypes.PayloadPart{Bytes: []byte(`{"type":"message_start","message":{"id":"msg_1"}}`)},
	}
	stream.events <- &bedrocktypes.ResponseStreamMemberChunk{
		Value: bedrocktypes.PayloadPart{Bytes: []byte(`not json`)},
	}
	stream.events <- &bedrocktypes.ResponseStreamMemberChunk{
		Value: bedrocktypes.PayloadPart{Bytes: []byte(`{"type":"message_stop"}`)},
	}
	close(stream.events)

	out := make(chan StreamItem, 8)
	bridgeNativeStream(context.Background(), stream, zaptest.NewLogger(t), out)

	items := collectItems(t, out)
	require.Len(t, items, 2)
	assert.Equal(t, "message_start", items[0].Event.Name)
	assert.Equal(t, "message_stop", items[1].Event.Name)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(items[0].Event.Data.(json.RawMessage), &payload))
	assert.Equal(t, "message_start", payload["type"])
}

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

// SSE event names for the Messages streaming schema. Each wire record is
// exactly "event: <name>\ndata: <json>\n\n".
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// StreamEvent is one SSE record before framing.
type StreamEvent struct {
	Name string
	Data any
}

// MessageStartEvent is the message_start payload.
type MessageStartEvent struct {
	Type    string       `json:"type"`
	Message StartMessage `json:"message"`
}

// StartMessage is the embedded message inside message_start. Content is
// always empty at stream start; container is present on PTC turns.
type StartMessage struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
	Container    *Container     `json:"container,omitempty"`
}

// ContentBlockStartEvent is the content_block_start payload.
type ContentBlockStartEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

// ContentBlockDeltaEvent is the content_block_delta payload.
type ContentBlockDeltaEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta Delta  `json:"delta"`
}

// Delta is the union of streaming delta shapes.
type Delta struct {
	Type string `json:"type"`

	// text_delta
	Text string `json:"text,omitempty"`

	// thinking_delta / signature_delta
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// input_json_delta
	PartialJSON string `json:"partial_json,omitempty"`
}

// ContentBlockStopEvent is the content_block_stop payload.
type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// MessageDeltaEvent is the message_delta payload carrying the final stop
// reason and accumulated usage.
type MessageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta MessageDelta `json:"delta"`
	Usage Usage        `json:"usage"`
}

// MessageDelta is the delta body of message_delta.
type MessageDelta struct {
	StopReason   string  `json:"stop_reason,omitempty"`
	StopSequence *string `json:"stop_sequence"`
}

// MessageStopEvent is the message_stop payload.
type MessageStopEvent struct {
	Type string `json:"type"`
}

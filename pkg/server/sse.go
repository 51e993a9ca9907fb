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
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

// sseWriter frames Messages stream events as "event: <name>\ndata:
// <json>\n\n" records and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for streaming. Returns an error if
// the underlying writer cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &sseWriter{w: w, flusher: flusher}, nil
}

// Write emits one event record.
func (s *sseWriter) Write(event anthropic.StreamEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError emits the terminal error event.
func (s *sseWriter) WriteError(err error) {
	apiErr := anthropic.AsAPIError(err)
	_ = s.Write(anthropic.StreamEvent{
		Name: anthropic.EventError,
		Data: map[string]any{
			"type":  anthropic.EventError,
			"error": apiErr.Body().Error,
		},
	})
}

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

package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// Run is one harness execution. Events arrive on Events in order; the
// channel closes after the terminal result event or a transport failure
// (surfaced through Err). Results are injected back with Resume and
// ResumeBatch while the run is paused on a tool call.
type Run struct {
	attach types.HijackedResponse
	events chan Event
	logger *zap.Logger

	mu     sync.Mutex
	err    error
	closed bool
}

func newRun(ctx context.Context, attach types.HijackedResponse, logger *zap.Logger) *Run {
	r := &Run{
		attach: attach,
		events: make(chan Event, 4),
		logger: logger,
	}
	go r.pump(ctx)
	return r
}

// pump demuxes the exec output, parses marked protocol lines, and feeds
// the event channel until the stream ends.
func (r *Run) pump(ctx context.Context) {
	defer close(r.events)
	defer r.attach.Close()

	pr, pw := io.Pipe()
	go func() {
		// Stderr of the harness itself only carries crash noise; user
		// stderr travels inside the result event.
		_, err := stdcopy.StdCopy(pw, io.Discard, r.attach.Reader)
		pw.CloseWithError(err)
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		event, err := parseEventLine(line)
		if err != nil {
			r.logger.Warn("dropping malformed sandbox line", zap.Error(err))
			continue
		}
		if event == nil {
			if strings.TrimSpace(line) != "" {
				r.logger.Debug("unmarked sandbox output", zap.String("line", line))
			}
			continue
		}

		select {
		case r.events <- *event:
		case <-ctx.Done():
			r.setErr(ctx.Err())
			return
		}
		if event.Result != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		r.setErr(fmt.Errorf("sandbox stream failed: %w", err))
	}
}

// Events returns the ordered event stream for this run.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Err reports the transport error that terminated the run, if any. Valid
// after Events closes.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Resume answers a single pending tool call and unblocks the code.
func (r *Run) Resume(result ToolResult) error {
	return r.writeLine(result)
}

// ResumeBatch answers a parallel batch. Results must cover every call in
// the batch; order does not matter, the harness matches by call id.
func (r *Run) ResumeBatch(results []ToolResult) error {
	return r.writeLine(batchResponse{Results: results})
}

func (r *Run) writeLine(payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("sandbox run already closed")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode sandbox response: %w", err)
	}
	data = append(data, '\n')
	if _, err := r.attach.Conn.Write(data); err != nil {
		return fmt.Errorf("failed to write to sandbox: %w", err)
	}
	return nil
}

// Close tears the attachment down, aborting a paused run.
func (r *Run) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.attach.Close()
	}
}

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
	"io"
	"net"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeAttach wires a Run to an in-memory pipe that mimics a hijacked
// docker exec: the test writes multiplexed frames on the peer end and
// reads back the gateway's stdin lines.
type fakeAttach struct {
	run  *Run
	peer net.Conn
	out  io.Writer
	in   *bufio.Reader
}

func newFakeAttach(t *testing.T) *fakeAttach {
	t.Helper()
	client, peer := net.Pipe()
	attach := types.HijackedResponse{Conn: client, Reader: bufio.NewReader(client)}
	f := &fakeAttach{
		run:  newRun(context.Background(), attach, zaptest.NewLogger(t)),
		peer: peer,
		out:  stdcopy.NewStdWriter(peer, stdcopy.Stdout),
		in:   bufio.NewReader(peer),
	}
	t.Cleanup(func() { _ = peer.Close() })
	return f
}

func (f *fakeAttach) emit(t *testing.T, line string) {
	t.Helper()
	go func() {
		_, _ = f.out.Write([]byte(line + "\n"))
	}()
}

// readLine consumes one stdin line on the harness side; the pipe is
// synchronous, so this must run before the gateway writes.
func (f *fakeAttach) readLine(t *testing.T) <-chan string {
	t.Helper()
	ch := make(chan string, 1)
	go func() {
		line, err := f.in.ReadString('\n')
		if err == nil {
			ch <- line
		}
	}()
	return ch
}

func waitEvent(t *testing.T, run *Run) Event {
	t.Helper()
	select {
	case event, ok := <-run.Events():
		require.True(t, ok, "event channel closed early: %v", run.Err())
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sandbox event")
		return Event{}
	}
}

func waitClosed(t *testing.T, run *Run) {
	t.Helper()
	select {
	case _, ok := <-run.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event channel to close")
	}
}

func TestRunPauseAndResume(t *testing.T) {
	t.Parallel()
	f := newFakeAttach(t)

	f.emit(t, eventMarker+`{"kind":"tool_call","call_id":"call_000001","tool_name":"query_database","arguments":{"sql":"SELECT 1"}}`)

	event := waitEvent(t, f.run)
	require.NotNil(t, event.ToolCall)
	assert.Equal(t, "call_000001", event.ToolCall.CallID)

	lines := f.readLine(t)
	require.NoError(t, f.run.Resume(ToolResult{CallID: "call_000001", Result: `{"rows":1}`}))

	var injected ToolResult
	require.NoError(t, json.Unmarshal([]byte(<-lines), &injected))
	assert.Equal(t, "call_000001", injected.CallID)
	assert.Equal(t, `{"rows":1}`, injected.Result)

	f.emit(t, eventMarker+`{"kind":"result","success":true,"stdout":"done\n"}`)
	event = waitEvent(t, f.run)
	require.NotNil(t, event.Result)
	assert.Equal(t, "done\n", event.Result.Stdout)

	waitClosed(t, f.run)
	assert.NoError(t, f.run.Err())
}

func TestRunResumeBatch(t *testing.T) {
	t.Parallel()
	f := newFakeAttach(t)

	f.emit(t, eventMarker+`{"kind":"batch","calls":[{"call_id":"call_000001","tool_name":"a"},{"call_id":"call_000002","tool_name":"a"}]}`)

	event := waitEvent(t, f.run)
	require.NotNil(t, event.Batch)
	require.Len(t, event.Batch.Calls, 2)

	lines := f.readLine(t)
	require.NoError(t, f.run.ResumeBatch([]ToolResult{
		{CallID: "call_000001", Result: "1"},
		{CallID: "call_000002", Error: "boom"},
	}))

	var injected struct {
		Results []ToolResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(<-lines), &injected))
	require.Len(t, injected.Results, 2)
	assert.Equal(t, "boom", injected.Results[1].Error)
}

func TestRunIgnoresNoise(t *testing.T) {
	t.Parallel()
	f := newFakeAttach(t)

	go func() {
		_, _ = f.out.Write([]byte("stray print\n"))
		_, _ = f.out.Write([]byte(eventMarker + "{broken\n"))
		_, _ = f.out.Write([]byte(eventMarker + `{"kind":"result","success":false,"stderr":"Traceback"}` + "\n"))
	}()

	event := waitEvent(t, f.run)
	require.NotNil(t, event.Result)
	assert.False(t, event.Result.Success)
	assert.Equal(t, "Traceback", event.Result.Stderr)
}

func TestRunClose(t *testing.T) {
	t.Parallel()
	f := newFakeAttach(t)

	f.run.Close()
	err := f.run.Resume(ToolResult{CallID: "call_000001"})
	assert.ErrorContains(t, err, "closed")

	waitClosed(t, f.run)
}

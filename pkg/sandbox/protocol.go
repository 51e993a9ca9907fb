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

// Package sandbox runs model-written code inside isolated Docker
// containers and surfaces the nested tool calls that code makes while it
// runs. One session maps to one container; one Run maps to one harness
// process inside it.
package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// eventMarker prefixes every harness-to-gateway protocol line on the
// harness's real stdout. User code output is captured separately inside
// the harness, so marked lines are unambiguous.
const eventMarker = "__RELAY_EVT__"

// ToolCallRequest is a single nested tool call surfaced by running code.
type ToolCallRequest struct {
	CallID    string         `json:"call_id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// BatchToolCallRequest is an ordered parallel fan-out of tool calls. All
// results must arrive before the code resumes.
type BatchToolCallRequest struct {
	Calls []ToolCallRequest `json:"calls"`
}

// ExecutionResult is the terminal outcome of one code run.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// Event is the tagged union yielded by a Run: exactly one field is set.
type Event struct {
	ToolCall *ToolCallRequest
	Batch    *BatchToolCallRequest
	Result   *ExecutionResult
}

// ToolResult is one answer injected back into a paused run. Exactly one
// of Result and Error is meaningful; Error aborts the awaiting call with
// an exception inside the code.
type ToolResult struct {
	CallID string `json:"call_id"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// wireEvent is the JSON payload behind the event marker.
type wireEvent struct {
	Kind      string            `json:"kind"`
	CallID    string            `json:"call_id,omitempty"`
	ToolName  string            `json:"tool_name,omitempty"`
	Arguments map[string]any    `json:"arguments,omitempty"`
	Calls     []ToolCallRequest `json:"calls,omitempty"`
	Success   bool              `json:"success,omitempty"`
	Stdout    string            `json:"stdout,omitempty"`
	Stderr    string            `json:"stderr,omitempty"`
}

// parseEventLine decodes one marked protocol line. Returns nil for lines
// without the marker.
func parseEventLine(line string) (*Event, error) {
	idx := strings.Index(line, eventMarker)
	if idx < 0 {
		return nil, nil
	}
	payload := line[idx+len(eventMarker):]

	var we wireEvent
	if err := json.Unmarshal([]byte(payload), &we); err != nil {
		return nil, fmt.Errorf("malformed sandbox event: %w", err)
	}
	switch we.Kind {
	case "tool_call":
		return &Event{ToolCall: &ToolCallRequest{
			CallID:    we.CallID,
			ToolName:  we.ToolName,
			Arguments: we.Arguments,
		}}, nil
	case "batch":
		return &Event{Batch: &BatchToolCallRequest{Calls: we.Calls}}, nil
	case "result":
		return &Event{Result: &ExecutionResult{
			Success: we.Success,
			Stdout:  we.Stdout,
			Stderr:  we.Stderr,
		}}, nil
	default:
		return nil, fmt.Errorf("unknown sandbox event kind %q", we.Kind)
	}
}

// batchResponse is the gateway-to-harness answer for a batch request.
type batchResponse struct {
	Results []ToolResult `json:"results"`
}

// harnessSource is the Python harness started for each Run. It reads the
// user code from RELAY_CODE (base64) and the callable tool names from
// RELAY_TOOLS (JSON list), captures user stdout/stderr, and speaks the
// line protocol on its real stdout/stdin.
const harnessSource = `
import asyncio, base64, contextlib, io, json, os, sys, traceback

_out = io.StringIO()
_err = io.StringIO()
_stdin = sys.stdin
_real_stdout = sys.stdout

def _emit(obj):
    _real_stdout.write("__RELAY_EVT__" + json.dumps(obj) + "\n")
    _real_stdout.flush()

_counter = 0

def _next_id():
    global _counter
    _counter += 1
    return "call_%06d" % _counter

class ToolError(Exception):
    pass

class _ToolCall:
    def __init__(self, name, kwargs):
        self.call_id = _next_id()
        self.name = name
        self.kwargs = kwargs

    def __await__(self):
        _emit({"kind": "tool_call", "call_id": self.call_id,
               "tool_name": self.name, "arguments": self.kwargs})
        msg = json.loads(_stdin.readline())
        if msg.get("error"):
            raise ToolError(msg["error"])
        return msg.get("result")
        yield  # pragma: no cover - makes this a generator-based awaitable

_real_gather = asyncio.gather

async def gather(*calls):
    if not calls:
        return []
    plain = [c for c in calls if isinstance(c, _ToolCall)]
    if len(plain) != len(calls):
        return await _real_gather(*calls)
    _emit({"kind": "batch", "calls": [
        {"call_id": c.call_id, "tool_name": c.name, "arguments": c.kwargs}
        for c in plain]})
    msg = json.loads(_stdin.readline())
    by_id = {r["call_id"]: r for r in msg.get("results", [])}
    out = []
    for c in plain:
        r = by_id.get(c.call_id, {})
        if r.get("error"):
            raise ToolError(r["error"])
        out.append(r.get("result"))
    return out

asyncio.gather = gather

def _make_tool(name):
    def _fn(**kwargs):
        return _ToolCall(name, kwargs)
    _fn.__name__ = name
    return _fn

_ns = {"gather": gather, "asyncio": asyncio, "ToolError": ToolError}
for _name in json.loads(os.environ.get("RELAY_TOOLS", "[]")):
    if _name.isidentifier():
        _ns[_name] = _make_tool(_name)

_code = base64.b64decode(os.environ["RELAY_CODE"]).decode("utf-8")
_body = "".join("    " + line + "\n" for line in _code.splitlines())
_wrapped = "async def __relay_main__():\n" + (_body or "    pass\n")

try:
    exec(compile(_wrapped, "<code>", "exec"), _ns)
    with contextlib.redirect_stdout(_out), contextlib.redirect_stderr(_err):
        asyncio.run(_ns["__relay_main__"]())
    _emit({"kind": "result", "success": True,
           "stdout": _out.getvalue(), "stderr": _err.getvalue()})
except BaseException:
    _err.write(traceback.format_exc())
    _emit({"kind": "result", "success": False,
           "stdout": _out.getvalue(), "stderr": _err.getvalue()})
`

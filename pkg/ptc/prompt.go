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

package ptc

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/teradata-labs/relay/pkg/anthropic"
)

// buildExecuteCodeTool synthesizes the execute_code tool that replaces
// the server-side code_execution tool. Its description carries the
// catalog of sandbox-callable tools and the parallel-execution guidance.
func buildExecuteCodeTool(callable []anthropic.Tool) anthropic.Tool {
	var docs []string
	for _, t := range callable {
		schema, _ := json.Marshal(t.InputSchema)
		docs = append(docs, fmt.Sprintf("- %s: %s\n  Parameters: %s", t.Name, t.Description, schema))
	}
	toolsDoc := "No tools available"
	if len(docs) > 0 {
		toolsDoc = strings.Join(docs, "\n")
	}

	description := fmt.Sprintf(`Execute Python code in a sandboxed environment.

The code can call the following async tool functions:
%s

Important:
- All tool calls must use `+"`await`"+`, e.g., `+"`result = await query_database(sql=\"SELECT * FROM users\")`"+`
- Use `+"`print()`"+` to output results you want to see
- Code runs in an isolated environment without network access
- Only the print output will be returned

Performance optimization - PARALLEL EXECUTION:
When you need to call the same tool multiple times with different parameters (e.g., fetching data for multiple items), ALWAYS use asyncio.gather for parallel execution instead of sequential loops:

BAD (slow, sequential):
`+"```python"+`
results = []
for item_id in item_ids:
    result = await get_item(id=item_id)
    results.append(result)
`+"```"+`

GOOD (fast, parallel):
`+"```python"+`
import asyncio
tasks = [get_item(id=item_id) for item_id in item_ids]
results = await asyncio.gather(*tasks)
`+"```"+`

This significantly improves performance by executing multiple tool calls concurrently.`, toolsDoc)

	return anthropic.Tool{
		Name:        anthropic.ExecuteCodeToolName,
		Description: description,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python code to execute. Use await for tool calls. Use asyncio.gather for parallel tool calls.",
				},
			},
			"required": []string{"code"},
		},
	}
}

// buildSystemPrompt renders the PTC system prompt appended to the
// client's system message: the tool catalog, the await/print contract,
// and the stateless-environment rules.
func buildSystemPrompt(callable []anthropic.Tool) string {
	var docs []string
	for _, t := range callable {
		var params []string
		if props, ok := t.InputSchema["properties"].(map[string]any); ok {
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				ptype := "any"
				if prop, ok := props[name].(map[string]any); ok {
					if s, ok := prop["type"].(string); ok {
						ptype = s
					}
				}
				params = append(params, fmt.Sprintf("%s: %s", name, ptype))
			}
		}
		docs = append(docs, fmt.Sprintf("- `%s(%s)`: %s", t.Name, strings.Join(params, ", "), t.Description))
	}
	toolsDoc := "No tools available"
	if len(docs) > 0 {
		toolsDoc = strings.Join(docs, "\n")
	}

	return fmt.Sprintf(`## Code Execution Environment

You have access to the `+"`execute_code`"+` tool which runs Python code in a sandboxed environment. Within your code, you can call the following async tool functions:

%s

## Usage

When you need to execute multi-step tasks, use the `+"`execute_code`"+` tool to write Python code.

### Key Rules:
1. All tool calls must use `+"`await`"+`, for example: `+"`result = await query_sales(region=\"East\")`"+`
2. Use `+"`print()`"+` to output results - this is the only way for you to get execution results
3. You can perform data processing, filtering, aggregation, and conditional logic in your code
4. After code execution completes, you will see the content output by print

## CRITICAL: Stateless Execution Environment

**IMPORTANT: Each `+"`execute_code`"+` call runs in a FRESH, ISOLATED environment.**

- Variables, data, and state from previous code executions DO NOT persist
- Each code block starts with a completely clean slate
- You CANNOT reference variables defined in previous `+"`execute_code`"+` calls

### Best Practices:
1. Complete tasks in ONE code block whenever possible (MOST IMPORTANT)
2. Use asyncio.gather() when calling the same tool for multiple items
3. Handle branching logic within a single execution
4. If multiple blocks are unavoidable, re-fetch data - never assume variables exist from before
5. Include all necessary imports (json, asyncio) in every block
6. Use json.loads() to parse tool return values

## Docker Sandbox Features
- Secure, isolated execution environment
- **Each execution starts fresh with no state from previous executions**
- Network disabled for security
- Resource limits enforced (memory, CPU)
- Timeout protection`, toolsDoc)
}

// PrepareRequest rewrites a PTC request for the backend: the server-side
// code_execution tool becomes the synthesized execute_code tool, only
// direct-callable tools survive (without allowed_callers), internal
// tool traffic is filtered from the history, and the PTC system prompt
// is appended. Safe to apply to already-prepared requests; execute_code
// is never duplicated.
func PrepareRequest(req *anthropic.Request, callable []anthropic.Tool) *anthropic.Request {
	tools := []anthropic.Tool{buildExecuteCodeTool(callable)}
	for _, t := range req.Tools {
		if t.Type == anthropic.ToolTypeCodeExecution {
			continue
		}
		if t.Name == anthropic.ExecuteCodeToolName {
			continue
		}
		if !t.AllowsCaller(anthropic.CallerDirect) {
			continue
		}
		t.AllowedCallers = nil
		tools = append(tools, t)
	}

	prepared := *req
	prepared.Tools = tools
	prepared.Messages = filterNonDirectToolCalls(req.Messages)
	prepared.System = req.System.Append(systemSeparator(req.System) + buildSystemPrompt(callable))
	return &prepared
}

// systemSeparator keeps a blank line between the client system text and
// the appended PTC prompt when the system field is a plain string.
func systemSeparator(s anthropic.SystemPrompt) string {
	if s.Plain && len(s.Blocks) == 1 && s.Blocks[0].Text != "" {
		return "\n\n"
	}
	return ""
}

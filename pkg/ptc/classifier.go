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

// Package ptc implements programmatic tool calling: the model writes
// code against the client's tools, the code runs in a Docker sandbox,
// and nested tool calls made by that code are surfaced to the client as
// ordinary tool_use turns while the sandbox stays paused.
package ptc

import (
	"strings"

	"github.com/teradata-labs/relay/pkg/anthropic"
	"github.com/teradata-labs/relay/pkg/bedrock"
)

// IsPTCRequest reports whether a request enters the PTC flow: PTC is
// enabled, the beta header names advanced tool use, and the tools carry
// a code execution tool.
func IsPTCRequest(req *anthropic.Request, betaHeader string, enabled bool) bool {
	if !enabled {
		return false
	}
	if !strings.Contains(betaHeader, bedrock.BetaAdvancedToolUse) {
		return false
	}
	for _, t := range req.Tools {
		if t.Type == anthropic.ToolTypeCodeExecution {
			return true
		}
	}
	return false
}

// PartitionTools splits the request tools into code-execution tools and
// PTC-callable tools. Tools that are neither stay direct-only and are
// not returned here.
func PartitionTools(req *anthropic.Request) (codeExecution, callable []anthropic.Tool) {
	for _, t := range req.Tools {
		if t.Type == anthropic.ToolTypeCodeExecution {
			codeExecution = append(codeExecution, t)
			continue
		}
		if t.AllowsCaller(anthropic.CallerCodeExecution) {
			callable = append(callable, t)
		}
	}
	return codeExecution, callable
}

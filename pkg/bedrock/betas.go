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

import "strings"

// BetaAdvancedToolUse is the client-side beta value that enables the
// advanced tool use feature set, including programmatic tool calling.
const BetaAdvancedToolUse = "advanced-tool-use-2025-11-20"

// betaMapping expands one client beta value into the Bedrock beta values
// that implement it.
var betaMapping = map[string][]string{
	BetaAdvancedToolUse: {
		"tool-examples-2025-10-29",
		"tool-search-tool-2025-10-19",
	},
}

// betaPassthrough lists client beta values forwarded to Bedrock unchanged.
var betaPassthrough = map[string]bool{
	"fine-grained-tool-streaming-2025-05-14": true,
	"interleaved-thinking-2025-05-14":        true,
	"context-management-2025-06-27":          true,
	"compact-2026-01-12":                     true,
}

// betaBlocklist lists client beta values Bedrock does not accept; they are
// dropped silently.
var betaBlocklist = map[string]bool{
	"prompt-caching-scope-2026-01-05": true,
}

// betaRequiresInvokeModel lists produced Bedrock beta values only served by
// the InvokeModel API. Their presence forces the native request shape for
// Anthropic-family models.
var betaRequiresInvokeModel = map[string]bool{
	"tool-examples-2025-10-29":    true,
	"tool-search-tool-2025-10-19": true,
}

// betaSupportedModels lists the model ids for which beta values are mapped
// and forwarded at all.
var betaSupportedModels = map[string]bool{
	"claude-opus-4-5-20251101":                       true,
	"global.anthropic.claude-opus-4-5-20251101-v1:0": true,
	"claude-opus-4-6":                                true,
	"global.anthropic.claude-opus-4-6-v1":            true,
}

// toolTypeRemap maps dated client tool types to the names Bedrock
// recognizes.
var toolTypeRemap = map[string]string{
	"tool_search_tool_regex_20251119": "tool_search_tool_regex",
	"tool_search_tool_20251119":       "tool_search_tool",
}

// IsAnthropicModel reports whether the resolved model id belongs to the
// Anthropic family and therefore speaks the native Messages request shape.
func IsAnthropicModel(modelID string) bool {
	m := strings.ToLower(modelID)
	return strings.Contains(m, "anthropic") || strings.Contains(m, "claude")
}

// ModelSupportsBetas reports whether beta values are forwarded for the
// model at all.
func ModelSupportsBetas(modelID string) bool {
	return betaSupportedModels[modelID]
}

// ResolveBetas translates the comma-separated anthropic-beta header into
// the list of Bedrock beta values, and reports whether any produced value
// requires the InvokeModel API.
//
// Per-value handling: mapped values expand, passthrough values forward,
// blocklisted values drop, unknown values forward unchanged.
func ResolveBetas(header string) (betas []string, requiresInvoke bool) {
	if header == "" {
		return nil, false
	}
	seen := map[string]bool{}
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			betas = append(betas, v)
			if betaRequiresInvokeModel[v] {
				requiresInvoke = true
			}
		}
	}
	for _, raw := range strings.Split(header, ",") {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		switch {
		case betaBlocklist[v]:
			// dropped
		case len(betaMapping[v]) > 0:
			for _, mapped := range betaMapping[v] {
				add(mapped)
			}
		case betaPassthrough[v]:
			add(v)
		default:
			add(v)
		}
	}
	return betas, requiresInvoke
}

// HasBeta reports whether the comma-separated header contains the value.
func HasBeta(header, value string) bool {
	for _, raw := range strings.Split(header, ",") {
		if strings.TrimSpace(raw) == value {
			return true
		}
	}
	return false
}

// RemapToolType returns the Bedrock-recognized name for a dated client
// tool type, or the input unchanged.
func RemapToolType(toolType string) string {
	if mapped, ok := toolTypeRemap[toolType]; ok {
		return mapped
	}
	return toolType
}

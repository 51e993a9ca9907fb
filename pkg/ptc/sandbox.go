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
	"context"

	"github.com/teradata-labs/relay/pkg/sandbox"
)

// Execution is one running code harness: the ordered event stream plus
// result injection while the run is paused on a tool call.
type Execution interface {
	Events() <-chan sandbox.Event
	Err() error
	Resume(result sandbox.ToolResult) error
	ResumeBatch(results []sandbox.ToolResult) error
	Close()
}

// Sandbox is the container runtime behind sessions and code execution.
type Sandbox interface {
	Ping(ctx context.Context) error
	CreateContainer(ctx context.Context, name string) (string, error)
	RemoveContainer(ctx context.Context, containerID string) error
	Execute(ctx context.Context, containerID, code string, toolNames []string) (Execution, error)
}

// DockerSandbox adapts sandbox.Executor to the Sandbox interface.
type DockerSandbox struct {
	*sandbox.Executor
}

func (d DockerSandbox) Execute(ctx context.Context, containerID, code string, toolNames []string) (Execution, error) {
	run, err := d.Executor.Execute(ctx, containerID, code, toolNames)
	if err != nil {
		return nil, err
	}
	return run, nil
}

var (
	_ Sandbox   = DockerSandbox{}
	_ Execution = (*sandbox.Run)(nil)
)

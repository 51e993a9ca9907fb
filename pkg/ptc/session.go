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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/pkg/anthropic"
	relayconfig "github.com/teradata-labs/relay/pkg/config"
	"github.com/teradata-labs/relay/pkg/sandbox"
)

// PendingToolCall tracks the sandbox call the session is paused on.
type PendingToolCall struct {
	CallID              string
	ToolName            string
	Arguments           map[string]any
	CodeExecutionToolID string
}

// RequestSnapshot preserves the originating request parameters for
// continuation turns. The client may not re-send system or thinking
// settings, so the snapshot is authoritative while the session is
// paused.
type RequestSnapshot struct {
	System        anthropic.SystemPrompt
	Model         string
	MaxTokens     int
	Temperature   *float64
	TopP          *float64
	TopK          *int
	StopSequences []string
	ToolChoice    *anthropic.ToolChoice
	Thinking      json.RawMessage
	BetaHeader    string
}

// ExecutionState lives only while a session is paused on tool calls. It
// carries the paused Run, the pending call set, and everything needed to
// rebuild the backend conversation when the sandbox finishes.
type ExecutionState struct {
	CodeExecutionToolID string
	Code                string

	// PendingCalls is the current call or parallel batch, in the order
	// the sandbox issued them.
	PendingCalls []sandbox.ToolCallRequest
	// PublicIDs maps the tool_use ids handed to the client back to the
	// sandbox call ids.
	PublicIDs     map[string]string
	ToolCallCount int

	Snapshot                 RequestSnapshot
	OriginalAssistantContent []anthropic.ContentBlock
	OriginalExecuteCodeID    string

	Run Execution
}

// Session is one PTC container session. Its ID is the container id
// exposed to clients.
type Session struct {
	ID          string
	ContainerID string
	ExpiresAt   time.Time
	IsBusy      bool
	Pending     *PendingToolCall
	State       *ExecutionState
}

// Container renders the session's client-facing container metadata.
func (s *Session) Container() *anthropic.Container {
	return &anthropic.Container{ID: s.ID, ExpiresAt: s.ExpiresAt.UTC()}
}

// SessionManager owns the session map and the idle sweeper. Sessions are
// process-local; continuations must be routed back to this node.
type SessionManager struct {
	executor Sandbox
	cfg      relayconfig.PTCConfig
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	cron     *cron.Cron
}

// NewSessionManager creates a manager and starts the expiry sweeper.
func NewSessionManager(executor Sandbox, cfg relayconfig.PTCConfig, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &SessionManager{
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
		cron:     cron.New(),
	}
	if _, err := m.cron.AddFunc("@every 30s", m.sweep); err == nil {
		m.cron.Start()
	}
	return m
}

// Create provisions a new session with a fresh container.
func (m *SessionManager) Create(ctx context.Context) (*Session, error) {
	id := "ptc_" + uuid.New().String()
	containerID, err := m.executor.CreateContainer(ctx, "relay-"+id[:16])
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox session: %w", err)
	}

	session := &Session{
		ID:          id,
		ContainerID: containerID,
		ExpiresAt:   time.Now().Add(m.cfg.SessionTimeout),
	}

	m.mu.Lock()
	m.sessions[id] = session
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("ptc session created",
		zap.String("session_id", id),
		zap.Int("active_sessions", count),
	)
	return session, nil
}

// Get returns the live session for an id, or nil. A hit extends the
// session's expiry.
func (m *SessionManager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil
	}
	session.ExpiresAt = time.Now().Add(m.cfg.SessionTimeout)
	return session
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SampleIDs returns up to n live session ids for diagnostics.
func (m *SessionManager) SampleIDs(n int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, n)
	for id := range m.sessions {
		if len(ids) >= n {
			break
		}
		ids = append(ids, id)
	}
	return ids
}

// Close destroys a session: its paused run (if any) is aborted and the
// container removed.
func (m *SessionManager) Close(ctx context.Context, id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	if session.State != nil && session.State.Run != nil {
		session.State.Run.Close()
	}
	if err := m.executor.RemoveContainer(ctx, session.ContainerID); err != nil {
		m.logger.Warn("failed to remove session container",
			zap.String("session_id", id), zap.Error(err))
	}
	m.logger.Info("ptc session closed", zap.String("session_id", id))
}

// sweep evicts sessions past their idle expiry.
func (m *SessionManager) sweep() {
	now := time.Now()
	var expired []string

	m.mu.Lock()
	for id, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, id := range expired {
		m.logger.Info("evicting expired ptc session", zap.String("session_id", id))
		m.Close(ctx, id)
	}
}

// Shutdown stops the sweeper and closes every session.
func (m *SessionManager) Shutdown(ctx context.Context) {
	m.cron.Stop()

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(ctx, id)
	}
}

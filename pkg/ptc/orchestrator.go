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
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/relay/pkg/anthropic"
	relayconfig "github.com/teradata-labs/relay/pkg/config"
	"github.com/teradata-labs/relay/pkg/sandbox"
)

// Backend is the model invocation surface the orchestrator drives. PTC
// always calls the backend non-streaming; streaming to the client is
// synthesized by the emitter.
type Backend interface {
	Invoke(ctx context.Context, req *anthropic.Request, requestID, serviceTier, betaHeader string) (*anthropic.Response, error)
}

// CallOptions carry the per-request routing parameters.
type CallOptions struct {
	RequestID   string
	ServiceTier string
	BetaHeader  string
	ContainerID string
}

// Orchestrator owns the PTC state machine. A turn either completes (the
// sandbox ran to the end and the backend produced a final message) or
// pauses in WAITING_TOOL with tool_use blocks handed to the client.
type Orchestrator struct {
	backend  Backend
	sessions *SessionManager
	executor Sandbox
	cfg      relayconfig.PTCConfig
	logger   *zap.Logger
}

// NewOrchestrator wires the orchestrator to its backend and sandbox.
func NewOrchestrator(backend Backend, sessions *SessionManager, executor Sandbox, cfg relayconfig.PTCConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		backend:  backend,
		sessions: sessions,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}
}

// Sessions exposes the session manager for health checks and shutdown.
func (o *Orchestrator) Sessions() *SessionManager {
	return o.sessions
}

// IsContinuation reports whether the request resumes a paused execution
// rather than starting a turn: it names a container id and carries a
// tool_result for one of the pending public tool_use ids.
func (o *Orchestrator) IsContinuation(req *anthropic.Request, opts CallOptions) bool {
	id := containerID(req, opts)
	if id == "" {
		return false
	}
	session := o.sessions.Get(id)
	if session == nil || session.State == nil {
		// A named but unknown container is still a continuation attempt;
		// Continue surfaces the distinguished session-miss error.
		return hasAnyToolResult(req.Messages)
	}
	return len(collectToolResults(session.State, req.Messages)) > 0
}

// Handle runs one PTC turn from the top: prepare the request, call the
// backend, and if the model answered with execute_code, drive the
// sandbox until it pauses or finishes.
func (o *Orchestrator) Handle(ctx context.Context, req *anthropic.Request, opts CallOptions) (*anthropic.Response, error) {
	if err := o.executor.Ping(ctx); err != nil {
		return nil, anthropic.NewError(anthropic.ErrAPI,
			"Programmatic Tool Calling requires Docker which is not available. Please ensure Docker is running.")
	}

	_, callable := PartitionTools(req)
	prepared := PrepareRequest(req, callable)

	session, err := o.getOrCreateSession(ctx, containerID(req, opts))
	if err != nil {
		return nil, err
	}

	var usage anthropic.Usage
	resp, err := o.backend.Invoke(ctx, prepared, opts.RequestID, opts.ServiceTier, opts.BetaHeader)
	if err != nil {
		return nil, err
	}
	usage.Add(resp.Usage)

	call := findExecuteCodeCall(resp)
	if call == nil {
		resp = addDirectCaller(resp)
		resp.Usage = usage
		resp.Container = session.Container()
		return resp, nil
	}

	return o.runCodeExecution(ctx, call, resp, session, prepared, callable, opts, &usage)
}

// Continue resumes a paused execution with the client's tool results.
func (o *Orchestrator) Continue(ctx context.Context, req *anthropic.Request, opts CallOptions) (*anthropic.Response, error) {
	sessionID := containerID(req, opts)
	session := o.sessions.Get(sessionID)
	if session == nil || session.State == nil {
		return nil, o.sessionNotFoundError(sessionID)
	}
	state := session.State

	results := collectToolResults(state, req.Messages)
	if len(results) == 0 {
		return nil, anthropic.NewInvalidRequestError(fmt.Sprintf(
			"no tool_result found for pending tool call(s) of session %s", sessionID))
	}

	o.logger.Info("resuming ptc execution",
		zap.String("session_id", sessionID),
		zap.Int("results", len(results)),
		zap.Int("pending", len(state.PendingCalls)),
	)

	// Reinject in the sandbox's original request order. A batch resumes
	// only when every call has an answer.
	if len(state.PendingCalls) > 1 {
		ordered := make([]sandbox.ToolResult, 0, len(state.PendingCalls))
		for _, call := range state.PendingCalls {
			res, ok := results[call.CallID]
			if !ok {
				return nil, anthropic.NewInvalidRequestError(fmt.Sprintf(
					"missing tool_result for pending call %s (%s)", call.CallID, call.ToolName))
			}
			ordered = append(ordered, res)
		}
		if err := state.Run.ResumeBatch(ordered); err != nil {
			o.abandonSession(ctx, session)
			return nil, anthropic.NewError(anthropic.ErrAPI, err.Error())
		}
	} else {
		res, ok := results[state.PendingCalls[0].CallID]
		if !ok {
			return nil, anthropic.NewInvalidRequestError(fmt.Sprintf(
				"tool_result does not match pending call %s", state.PendingCalls[0].CallID))
		}
		if err := state.Run.Resume(res); err != nil {
			o.abandonSession(ctx, session)
			return nil, anthropic.NewError(anthropic.ErrAPI, err.Error())
		}
	}
	session.Pending = nil

	event, err := o.nextEvent(ctx, state.Run)
	if err != nil {
		o.abandonSession(ctx, session)
		return nil, err
	}

	switch {
	case event.ToolCall != nil:
		o.recordPending(session, state, []sandbox.ToolCallRequest{*event.ToolCall}, false)
		return o.buildMinimalToolUseResponse(state, session, req.Model), nil

	case event.Batch != nil:
		if len(event.Batch.Calls) == 0 {
			o.abandonSession(ctx, session)
			return nil, anthropic.NewError(anthropic.ErrAPI, "sandbox emitted an empty batch")
		}
		o.recordPending(session, state, event.Batch.Calls, true)
		return o.buildMinimalToolUseResponse(state, session, req.Model), nil

	case event.Result != nil:
		session.IsBusy = false
		_, callable := PartitionTools(req)
		if len(callable) == 0 {
			callable = callableFromState(state)
		}
		var usage anthropic.Usage
		return o.finalizeContinuation(ctx, event.Result, session, state, req, callable, opts, &usage)
	}
	o.abandonSession(ctx, session)
	return nil, anthropic.NewError(anthropic.ErrAPI, "unexpected sandbox event")
}

// getOrCreateSession reuses the named session when it is idle, otherwise
// creates a new one.
func (o *Orchestrator) getOrCreateSession(ctx context.Context, id string) (*Session, error) {
	if id != "" {
		if session := o.sessions.Get(id); session != nil {
			return session, nil
		}
	}
	return o.sessions.Create(ctx)
}

// runCodeExecution starts the sandbox for one execute_code call and
// drives it to its first pause or completion.
func (o *Orchestrator) runCodeExecution(
	ctx context.Context,
	call *anthropic.ContentBlock,
	resp *anthropic.Response,
	session *Session,
	prepared *anthropic.Request,
	callable []anthropic.Tool,
	opts CallOptions,
	usage *anthropic.Usage,
) (*anthropic.Response, error) {
	// A session already paused or busy cannot accept new code; the prior
	// execution is abandoned and a fresh session takes its place.
	if session.State != nil || session.Pending != nil || session.IsBusy {
		o.logger.Warn("session in inconsistent state, recreating",
			zap.String("session_id", session.ID),
			zap.Bool("busy", session.IsBusy),
			zap.Bool("has_state", session.State != nil),
		)
		o.sessions.Close(ctx, session.ID)
		fresh, err := o.sessions.Create(ctx)
		if err != nil {
			return nil, err
		}
		session = fresh
	}

	code, _ := call.Input["code"].(string)
	codeExecutionToolID := "srvtoolu_" + randomHex(12)

	toolNames := make([]string, 0, len(callable))
	for _, t := range callable {
		toolNames = append(toolNames, t.Name)
	}

	o.logger.Info("executing code in sandbox",
		zap.String("session_id", session.ID),
		zap.Int("code_bytes", len(code)),
	)

	run, err := o.executor.Execute(ctx, session.ContainerID, code, toolNames)
	if err != nil {
		return nil, anthropic.NewError(anthropic.ErrAPI, err.Error())
	}
	session.IsBusy = true

	state := &ExecutionState{
		CodeExecutionToolID:      codeExecutionToolID,
		Code:                     code,
		PublicIDs:                map[string]string{},
		Snapshot:                 snapshotOf(prepared, opts.BetaHeader),
		OriginalAssistantContent: resp.Content,
		OriginalExecuteCodeID:    call.ID,
		Run:                      run,
	}

	event, err := o.nextEvent(ctx, run)
	if err != nil {
		o.abandonSession(ctx, session)
		return nil, err
	}

	switch {
	case event.ToolCall != nil:
		session.State = state
		o.recordPending(session, state, []sandbox.ToolCallRequest{*event.ToolCall}, false)
		return o.buildToolUseResponse(state, resp, session, *usage), nil

	case event.Batch != nil:
		if len(event.Batch.Calls) == 0 {
			// The run is not attached to the session yet; close it here.
			run.Close()
			o.abandonSession(ctx, session)
			return nil, anthropic.NewError(anthropic.ErrAPI, "sandbox emitted an empty batch")
		}
		session.State = state
		o.recordPending(session, state, event.Batch.Calls, true)
		return o.buildToolUseResponse(state, resp, session, *usage), nil

	case event.Result != nil:
		session.IsBusy = false
		return o.completeInitialExecution(ctx, event.Result, call, resp, session, prepared, callable, opts, usage)
	}
	run.Close()
	o.abandonSession(ctx, session)
	return nil, anthropic.NewError(anthropic.ErrAPI, "unexpected sandbox event")
}

// completeInitialExecution finishes a turn whose code never paused: the
// code output goes back to the backend as a tool_result on the original
// execute_code call, within the current turn's own message list.
func (o *Orchestrator) completeInitialExecution(
	ctx context.Context,
	result *sandbox.ExecutionResult,
	call *anthropic.ContentBlock,
	resp *anthropic.Response,
	session *Session,
	prepared *anthropic.Request,
	callable []anthropic.Tool,
	opts CallOptions,
	usage *anthropic.Usage,
) (*anthropic.Response, error) {
	messages := filterNonDirectToolCalls(prepared.Messages)
	if assistant := filterAssistantBlocks(resp.Content); len(assistant) > 0 {
		messages = append(messages, anthropic.Message{
			Role:    anthropic.RoleAssistant,
			Content: anthropic.BlockContent(assistant...),
		})
	}
	messages = append(messages, toolResultMessage(call.ID, result))

	continuation := *prepared
	continuation.Messages = messages

	return o.invokeAndMaybeRecurse(ctx, &continuation, session, callable, opts, usage)
}

// finalizeContinuation finishes a paused turn: the conversation is
// rebuilt from the snapshot because the client's echoed assistant
// message may be missing thinking blocks.
func (o *Orchestrator) finalizeContinuation(
	ctx context.Context,
	result *sandbox.ExecutionResult,
	session *Session,
	state *ExecutionState,
	req *anthropic.Request,
	callable []anthropic.Tool,
	opts CallOptions,
	usage *anthropic.Usage,
) (*anthropic.Response, error) {
	messages := rebuildContinuationMessages(req.Messages, state)
	messages = append(messages, toolResultMessage(executeCodeID(state), result))

	snap := state.Snapshot
	continuation := &anthropic.Request{
		Model:         snap.Model,
		Messages:      messages,
		System:        snap.System,
		MaxTokens:     snap.MaxTokens,
		Temperature:   snap.Temperature,
		TopP:          snap.TopP,
		TopK:          snap.TopK,
		StopSequences: snap.StopSequences,
		ToolChoice:    snap.ToolChoice,
		Thinking:      snap.Thinking,
		Tools:         prepareTools(req.Tools, callable),
	}

	opts.BetaHeader = snap.BetaHeader
	opts.ServiceTier = firstNonEmpty(opts.ServiceTier, "default")

	// The paused execution is finished; drop the state before the final
	// backend round so a recursion starts clean.
	session.State = nil

	return o.invokeAndMaybeRecurse(ctx, continuation, session, callable, opts, usage)
}

// invokeAndMaybeRecurse calls the backend with a continuation request
// and recurses when the model immediately asks for another round of code.
func (o *Orchestrator) invokeAndMaybeRecurse(
	ctx context.Context,
	continuation *anthropic.Request,
	session *Session,
	callable []anthropic.Tool,
	opts CallOptions,
	usage *anthropic.Usage,
) (*anthropic.Response, error) {
	resp, err := o.backend.Invoke(ctx, continuation, opts.RequestID, opts.ServiceTier, opts.BetaHeader)
	if err != nil {
		return nil, err
	}
	usage.Add(resp.Usage)

	if next := findExecuteCodeCall(resp); next != nil {
		return o.runCodeExecution(ctx, next, resp, session, continuation, callable, opts, usage)
	}

	resp = addDirectCaller(resp)
	resp.Usage = *usage
	resp.Container = session.Container()
	return resp, nil
}

// nextEvent waits for the sandbox's next protocol event, bounded by the
// execution timeout.
func (o *Orchestrator) nextEvent(ctx context.Context, run Execution) (*sandbox.Event, error) {
	timeout := o.cfg.ExecutionTimeout
	if timeout <= 0 {
		timeout = relayconfig.DefaultExecutionTimeout
	}
	select {
	case event, ok := <-run.Events():
		if !ok {
			if err := run.Err(); err != nil {
				return nil, anthropic.NewError(anthropic.ErrAPI, err.Error())
			}
			return nil, anthropic.NewError(anthropic.ErrAPI, "code execution completed unexpectedly")
		}
		return &event, nil
	case <-time.After(timeout):
		run.Close()
		return nil, anthropic.NewError(anthropic.ErrAPI, "code execution timed out")
	case <-ctx.Done():
		run.Close()
		return nil, ctx.Err()
	}
}

// recordPending stores the pending call set and assigns the public
// tool_use ids the client will answer to. Batch ids derive from the
// sandbox call id so results can be matched positionally.
func (o *Orchestrator) recordPending(session *Session, state *ExecutionState, calls []sandbox.ToolCallRequest, batch bool) {
	state.PendingCalls = calls
	state.PublicIDs = make(map[string]string, len(calls))
	state.ToolCallCount += len(calls)
	for _, call := range calls {
		publicID := "toolu_" + randomHex(12)
		if batch {
			publicID = "toolu_" + head(call.CallID, 12)
		}
		state.PublicIDs[publicID] = call.CallID
	}
	first := calls[0]
	session.Pending = &PendingToolCall{
		CallID:              first.CallID,
		ToolName:            first.ToolName,
		Arguments:           first.Arguments,
		CodeExecutionToolID: state.CodeExecutionToolID,
	}
	session.State = state
}

// abandonSession closes a session after an unrecoverable failure.
func (o *Orchestrator) abandonSession(ctx context.Context, session *Session) {
	o.sessions.Close(ctx, session.ID)
}

// buildToolUseResponse renders the WAITING_TOOL response for the first
// pause of an execution: the model's thinking and text, the synthetic
// server_tool_use carrying the code, and one tool_use per pending call.
func (o *Orchestrator) buildToolUseResponse(state *ExecutionState, resp *anthropic.Response, session *Session, usage anthropic.Usage) *anthropic.Response {
	var thinking, text []anthropic.ContentBlock
	for _, b := range resp.Content {
		switch {
		case b.IsThinking():
			thinking = append(thinking, b)
		case b.Type == anthropic.BlockText:
			text = append(text, b)
		}
	}

	content := append(thinking, text...)
	content = append(content, anthropic.ContentBlock{
		Type:  anthropic.BlockServerToolUse,
		ID:    state.CodeExecutionToolID,
		Name:  anthropic.CodeExecutionToolName,
		Input: map[string]any{"code": state.Code},
	})
	content = append(content, o.pendingToolUseBlocks(state)...)

	return &anthropic.Response{
		ID:         resp.ID,
		Type:       "message",
		Role:       anthropic.RoleAssistant,
		Content:    content,
		Model:      resp.Model,
		StopReason: anthropic.StopToolUse,
		Usage:      usage,
		Container:  session.Container(),
	}
}

// buildMinimalToolUseResponse renders a WAITING_TOOL response for later
// pauses of the same execution. The server_tool_use was already sent on
// the first pause; only the new tool_use blocks appear.
func (o *Orchestrator) buildMinimalToolUseResponse(state *ExecutionState, session *Session, model string) *anthropic.Response {
	return &anthropic.Response{
		ID:         "msg_" + uuid.New().String(),
		Type:       "message",
		Role:       anthropic.RoleAssistant,
		Content:    o.pendingToolUseBlocks(state),
		Model:      model,
		StopReason: anthropic.StopToolUse,
		Usage:      anthropic.Usage{},
		Container:  session.Container(),
	}
}

// pendingToolUseBlocks renders the pending calls as client tool_use
// blocks tagged with the code-execution caller.
func (o *Orchestrator) pendingToolUseBlocks(state *ExecutionState) []anthropic.ContentBlock {
	byCall := make(map[string]string, len(state.PublicIDs))
	for publicID, callID := range state.PublicIDs {
		byCall[callID] = publicID
	}

	blocks := make([]anthropic.ContentBlock, 0, len(state.PendingCalls))
	for _, call := range state.PendingCalls {
		blocks = append(blocks, anthropic.ContentBlock{
			Type:  anthropic.BlockToolUse,
			ID:    byCall[call.CallID],
			Name:  call.ToolName,
			Input: call.Arguments,
			Caller: &anthropic.Caller{
				Type:   anthropic.CallerCodeExecution,
				ToolID: state.CodeExecutionToolID,
			},
		})
	}
	return blocks
}

// sessionNotFoundError is the distinguished continuation miss: the
// container id is not held by this node, usually a sticky-routing
// problem, never silently recoverable.
func (o *Orchestrator) sessionNotFoundError(sessionID string) *anthropic.APIError {
	instanceID := os.Getenv("HOSTNAME")
	if instanceID == "" {
		instanceID = "unknown"
	}
	active := o.sessions.Count()
	o.logger.Error("ptc session not found",
		zap.String("session_id", sessionID),
		zap.String("instance_id", instanceID),
		zap.Int("active_sessions", active),
	)
	return anthropic.NewError(anthropic.ErrPTCSessionNotFound, fmt.Sprintf(
		"PTC session '%s' not found on this instance (instance_id: %s). "+
			"This typically indicates a multi-instance routing issue. Possible causes: "+
			"(1) load balancer sticky session expired (session timeout: %s), "+
			"(2) instance was restarted and lost in-memory sessions, "+
			"(3) load balancer routed continuation request to a different instance. "+
			"Active sessions on this instance: %d. "+
			"Solution: ensure sticky sessions are enabled with sufficient duration, "+
			"or create a new PTC session.",
		sessionID, instanceID, o.cfg.SessionTimeout, active))
}

// findExecuteCodeCall locates the execute_code tool_use in a backend
// response.
func findExecuteCodeCall(resp *anthropic.Response) *anthropic.ContentBlock {
	for i, b := range resp.Content {
		if b.Type == anthropic.BlockToolUse && b.Name == anthropic.ExecuteCodeToolName {
			return &resp.Content[i]
		}
	}
	return nil
}

// collectToolResults matches client tool_result blocks to pending
// sandbox calls by public id.
func collectToolResults(state *ExecutionState, messages []anthropic.Message) map[string]sandbox.ToolResult {
	results := map[string]sandbox.ToolResult{}
	for _, msg := range messages {
		if msg.Role != anthropic.RoleUser {
			continue
		}
		for _, b := range msg.Content.Blocks {
			if b.Type != anthropic.BlockToolResult {
				continue
			}
			callID, ok := state.PublicIDs[b.ToolUseID]
			if !ok {
				continue
			}
			res := sandbox.ToolResult{CallID: callID}
			if b.IsError != nil && *b.IsError {
				res.Error = b.ContentText()
			} else {
				res.Result = b.ContentText()
			}
			results[callID] = res
		}
	}
	return results
}

// rebuildContinuationMessages reconstructs the backend conversation for
// finalization: everything the client echoed except its (incomplete)
// last assistant message and tool_result carrier messages, then the
// stored assistant content with thinking intact.
func rebuildContinuationMessages(clientMessages []anthropic.Message, state *ExecutionState) []anthropic.Message {
	lastAssistant := -1
	for i := len(clientMessages) - 1; i >= 0; i-- {
		if clientMessages[i].Role == anthropic.RoleAssistant {
			lastAssistant = i
			break
		}
	}

	var messages []anthropic.Message
	for i, msg := range clientMessages {
		if i == lastAssistant {
			continue
		}
		if msg.Role == anthropic.RoleUser && hasToolResult(msg) {
			continue
		}
		if msg.Role == anthropic.RoleAssistant && !msg.Content.Plain {
			blocks := filterAssistantBlocks(msg.Content.Blocks)
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: anthropic.BlockContent(blocks...),
			})
			continue
		}
		messages = append(messages, msg)
	}

	if assistant := filterAssistantBlocks(state.OriginalAssistantContent); len(assistant) > 0 {
		messages = append(messages, anthropic.Message{
			Role:    anthropic.RoleAssistant,
			Content: anthropic.BlockContent(assistant...),
		})
	}
	return messages
}

// toolResultMessage renders the execute_code tool_result carrying the
// code output.
func toolResultMessage(toolUseID string, result *sandbox.ExecutionResult) anthropic.Message {
	text := result.Stdout
	if !result.Success {
		text = "Error: " + result.Stderr
	} else if text == "" {
		text = "(Code executed successfully with no output)"
	}
	content, _ := json.Marshal(text)
	return anthropic.Message{
		Role: anthropic.RoleUser,
		Content: anthropic.BlockContent(anthropic.ContentBlock{
			Type:      anthropic.BlockToolResult,
			ToolUseID: toolUseID,
			Content:   content,
		}),
	}
}

// prepareTools rebuilds the backend tool list for a continuation round:
// the synthesized execute_code plus the direct-callable client tools.
func prepareTools(reqTools []anthropic.Tool, callable []anthropic.Tool) []anthropic.Tool {
	tools := []anthropic.Tool{buildExecuteCodeTool(callable)}
	for _, t := range reqTools {
		if t.Type == anthropic.ToolTypeCodeExecution || t.Name == anthropic.ExecuteCodeToolName {
			continue
		}
		if !t.AllowsCaller(anthropic.CallerDirect) {
			continue
		}
		t.AllowedCallers = nil
		tools = append(tools, t)
	}
	return tools
}

// callableFromState recovers tool stubs for the sandbox when the
// continuation request omitted the tool list.
func callableFromState(state *ExecutionState) []anthropic.Tool {
	seen := map[string]bool{}
	var tools []anthropic.Tool
	for _, call := range state.PendingCalls {
		if !seen[call.ToolName] {
			seen[call.ToolName] = true
			tools = append(tools, anthropic.Tool{Name: call.ToolName})
		}
	}
	return tools
}

// executeCodeID picks the tool_use id the execute_code result answers.
func executeCodeID(state *ExecutionState) string {
	if state.OriginalExecuteCodeID != "" {
		return state.OriginalExecuteCodeID
	}
	return "toolu_" + tail(state.CodeExecutionToolID, 12)
}

// snapshotOf freezes the request parameters that govern continuations.
func snapshotOf(req *anthropic.Request, betaHeader string) RequestSnapshot {
	return RequestSnapshot{
		System:        req.System,
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.StopSequences,
		ToolChoice:    req.ToolChoice,
		Thinking:      req.Thinking,
		BetaHeader:    betaHeader,
	}
}

func containerID(req *anthropic.Request, opts CallOptions) string {
	if req.Container != "" {
		return req.Container
	}
	return opts.ContainerID
}

func hasToolResult(msg anthropic.Message) bool {
	for _, b := range msg.Content.Blocks {
		if b.Type == anthropic.BlockToolResult {
			return true
		}
	}
	return false
}

func hasAnyToolResult(messages []anthropic.Message) bool {
	for _, msg := range messages {
		if msg.Role == anthropic.RoleUser && hasToolResult(msg) {
			return true
		}
	}
	return false
}

func randomHex(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return head(uuid.New().String(), n)
	}
	return head(hex.EncodeToString(buf), n)
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

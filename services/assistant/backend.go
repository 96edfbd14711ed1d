// Package assistant adapts the hosted conversational-AI backend (assistants,
// threads, runs, files) to the small surface the intake orchestrator needs.
package assistant

import "context"

// RunStatus is the lifecycle state of one assistant run
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// Pending reports whether a run is still being worked on by the backend
func (s RunStatus) Pending() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusCancelling:
		return true
	}
	return false
}

// ToolCall is a function call the assistant asked the caller to execute
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Run is a snapshot of an assistant run
type Run struct {
	ID        string
	Status    RunStatus
	ToolCalls []ToolCall // set when Status is requires_action
	LastError string
}

// ToolOutput acknowledges a tool call
type ToolOutput struct {
	ToolCallID string
	Output     string
}

// Backend is the conversation backend driven by the orchestrator
type Backend interface {
	CreateThread(ctx context.Context) (string, error)
	AddUserMessage(ctx context.Context, threadID, content string, fileIDs []string) error
	CreateRun(ctx context.Context, threadID string) (*Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error
	// LatestAssistantMessage returns the text of the newest assistant message in the thread
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
	UploadFile(ctx context.Context, fileName, mimeType string, data []byte) (string, error)
}

// Completer runs a single-turn chat completion
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

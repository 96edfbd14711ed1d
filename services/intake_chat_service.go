package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/services/assistant"
	"github.com/northbeam/portal-api/utils"
	"go.uber.org/zap"
)

const (
	// NoThreadSentinel is forwarded when a session ends before a thread was created
	NoThreadSentinel = "no_thread"

	// SubmitConversationDataFunction is the only tool call the assistant may request
	SubmitConversationDataFunction = "submit_conversation_data"

	// CompletionMessage is shown to the participant after natural completion
	CompletionMessage = "Thank you for taking the time to chat with us! We have everything we need, and a member of our team will be in touch soon."

	// SessionClosedMessage acknowledges close and timeout actions
	SessionClosedMessage = "Session closed"

	attachmentOnlyMessage = "I've attached a file for you to review."
)

var (
	ErrRunTimeout        = errors.New("assistant run did not finish in time")
	ErrFileTooLarge      = errors.New("file exceeds the maximum upload size")
	ErrInvalidFileData   = errors.New("file data is not valid base64")
	ErrUnsupportedAction = errors.New("assistant requested an unsupported action")
)

// UpstreamError wraps a failure from the conversation backend
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// SummaryForwarder delivers terminal summaries to the downstream automation webhook
type SummaryForwarder interface {
	Forward(ctx context.Context, payload model.WebhookPayload) error
}

// ActivityRecorder persists one audit event per handled action
type ActivityRecorder interface {
	Record(ctx context.Context, event model.IntakeEvent)
}

// FileArchiver keeps a copy of uploaded attachments
type FileArchiver interface {
	Archive(ctx context.Context, sessionID, fileName, mimeType string, data []byte) (string, error)
}

// IntakeChatConfig holds the orchestrator's fixed limits
type IntakeChatConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	MaxFileBytes    int
}

// DefaultIntakeChatConfig polls once per second for up to 60 attempts and accepts files up to 10 MB
func DefaultIntakeChatConfig() IntakeChatConfig {
	return IntakeChatConfig{
		PollInterval:    time.Second,
		MaxPollAttempts: 60,
		MaxFileBytes:    10 * 1024 * 1024,
	}
}

// IntakeChatService is the stateless orchestrator behind the intake chat widget.
// Each call handles exactly one action; no state survives between calls.
type IntakeChatService struct {
	backend   assistant.Backend
	forwarder SummaryForwarder
	recorder  ActivityRecorder
	archiver  FileArchiver
	config    IntakeChatConfig
	logger    *zap.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// IntakeChatOption configures optional collaborators
type IntakeChatOption func(*IntakeChatService)

func WithForwarder(f SummaryForwarder) IntakeChatOption {
	return func(s *IntakeChatService) { s.forwarder = f }
}

func WithRecorder(r ActivityRecorder) IntakeChatOption {
	return func(s *IntakeChatService) { s.recorder = r }
}

func WithArchiver(a FileArchiver) IntakeChatOption {
	return func(s *IntakeChatService) { s.archiver = a }
}

func WithLogger(l *zap.Logger) IntakeChatOption {
	return func(s *IntakeChatService) { s.logger = utils.OrNop(l) }
}

func WithClock(now func() time.Time) IntakeChatOption {
	return func(s *IntakeChatService) { s.now = now }
}

// NewIntakeChatService creates the orchestrator
func NewIntakeChatService(backend assistant.Backend, config IntakeChatConfig, opts ...IntakeChatOption) *IntakeChatService {
	s := &IntakeChatService{
		backend: backend,
		config:  config,
		logger:  zap.NewNop(),
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle dispatches one validated request. The result is one of
// *model.UploadFileResponse, *model.ChatReplyResponse or *model.SessionClosedResponse.
func (s *IntakeChatService) Handle(ctx context.Context, req model.IntakeChatRequest) (interface{}, error) {
	start := s.now()

	var (
		result interface{}
		err    error
	)
	switch req.Action {
	case model.ActionUploadFile:
		var upload *model.UploadFileResponse
		if upload, err = s.UploadFile(ctx, req); err == nil {
			result = upload
		}
	case model.ActionClose, model.ActionTimeout:
		result = s.CloseSession(ctx, req)
	case model.ActionStart, model.ActionMessage:
		var reply *model.ChatReplyResponse
		if reply, err = s.Converse(ctx, req); err == nil {
			result = reply
		}
	default:
		err = fmt.Errorf("unknown action %q", req.Action)
	}

	s.record(ctx, req, result, err, s.now().Sub(start))
	return result, err
}

// UploadFile decodes the payload and stores it with the backend for assistant use
func (s *IntakeChatService) UploadFile(ctx context.Context, req model.IntakeChatRequest) (*model.UploadFileResponse, error) {
	encoded := req.FileData
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}

	if base64.StdEncoding.DecodedLen(len(encoded)) > s.config.MaxFileBytes+2 {
		return nil, ErrFileTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFileData, err)
	}
	if len(data) > s.config.MaxFileBytes {
		return nil, ErrFileTooLarge
	}

	fileID, err := s.backend.UploadFile(ctx, req.FileName, req.FileType, data)
	if err != nil {
		return nil, &UpstreamError{Op: "upload file", Err: err}
	}

	s.logger.Info("Uploaded intake attachment",
		zap.String("session_id", req.FormData.SessionID),
		zap.String("file_id", fileID),
		zap.String("file_name", req.FileName),
		zap.Int("bytes", len(data)))

	if s.archiver != nil {
		if location, err := s.archiver.Archive(ctx, req.FormData.SessionID, req.FileName, req.FileType, data); err != nil {
			s.logger.Warn("Failed to archive intake attachment", zap.String("file_id", fileID), zap.Error(err))
		} else {
			s.logger.Debug("Archived intake attachment", zap.String("file_id", fileID), zap.String("location", location))
		}
	}

	return &model.UploadFileResponse{
		FileID:   fileID,
		FileName: req.FileName,
		Success:  true,
	}, nil
}

// CloseSession forwards a needs-follow-up summary for close and timeout actions.
// It always succeeds; forwarding failures are only logged.
func (s *IntakeChatService) CloseSession(ctx context.Context, req model.IntakeChatRequest) *model.SessionClosedResponse {
	reason := model.CompletionUserClosed
	summary := "User closed the chat before completing the conversation"
	if req.Action == model.ActionTimeout {
		reason = model.CompletionTimeout
		summary = "Conversation ended due to inactivity"
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = NoThreadSentinel
	}

	data := model.ConversationData{
		QualificationStatus: model.QualificationNeedsFollowUp,
		ConversationSummary: summary,
		KeyInsights:         []string{},
		NextSteps:           "",
		AdditionalData:      map[string]any{},
	}
	s.forward(ctx, model.NewWebhookPayload(req.FormData, data, reason, threadID, req.MessageCount, s.now()))

	return &model.SessionClosedResponse{
		Success: true,
		Message: SessionClosedMessage,
	}
}

// Converse handles start and message actions: it ensures a thread exists, posts the
// participant's text, runs the assistant and waits for it to finish.
func (s *IntakeChatService) Converse(ctx context.Context, req model.IntakeChatRequest) (*model.ChatReplyResponse, error) {
	threadID := req.ThreadID
	if threadID == "" {
		created, err := s.backend.CreateThread(ctx)
		if err != nil {
			return nil, &UpstreamError{Op: "create thread", Err: err}
		}
		threadID = created
		s.logger.Info("Created conversation thread",
			zap.String("session_id", req.FormData.SessionID),
			zap.String("thread_id", threadID))
	}

	text := strings.TrimSpace(req.Message)
	if text == "" && len(req.FileIDs) > 0 {
		text = attachmentOnlyMessage
	}
	if text != "" {
		if err := s.backend.AddUserMessage(ctx, threadID, text, req.FileIDs); err != nil {
			return nil, &UpstreamError{Op: "add message", Err: err}
		}
	}

	run, err := s.backend.CreateRun(ctx, threadID)
	if err != nil {
		return nil, &UpstreamError{Op: "create run", Err: err}
	}

	run, err = s.awaitRun(ctx, threadID, run)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case assistant.RunStatusRequiresAction:
		return s.completeWithFunctionCall(ctx, req, threadID, run)
	case assistant.RunStatusCompleted:
		text, err := s.backend.LatestAssistantMessage(ctx, threadID)
		if err != nil {
			return nil, &UpstreamError{Op: "fetch reply", Err: err}
		}
		return &model.ChatReplyResponse{
			ThreadID:  threadID,
			Message:   text,
			Completed: false,
		}, nil
	default:
		return nil, &UpstreamError{
			Op:  "run assistant",
			Err: fmt.Errorf("run %s ended with status %s %s", run.ID, run.Status, run.LastError),
		}
	}
}

// awaitRun polls sequentially until the run leaves the pending states.
// At most MaxPollAttempts status fetches are made.
func (s *IntakeChatService) awaitRun(ctx context.Context, threadID string, run *assistant.Run) (*assistant.Run, error) {
	for attempts := 0; run.Status.Pending(); attempts++ {
		if attempts == s.config.MaxPollAttempts {
			s.logger.Warn("Assistant run timed out",
				zap.String("thread_id", threadID),
				zap.String("run_id", run.ID),
				zap.Int("attempts", attempts))
			return nil, ErrRunTimeout
		}

		if err := s.sleep(ctx, s.config.PollInterval); err != nil {
			return nil, err
		}

		next, err := s.backend.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, &UpstreamError{Op: "poll run", Err: err}
		}
		run = next
	}
	return run, nil
}

// completeWithFunctionCall forwards the structured conversation data, then acknowledges
// the tool call. Neither step can fail the response once the data was received.
func (s *IntakeChatService) completeWithFunctionCall(ctx context.Context, req model.IntakeChatRequest, threadID string, run *assistant.Run) (*model.ChatReplyResponse, error) {
	var submit *assistant.ToolCall
	for i := range run.ToolCalls {
		if run.ToolCalls[i].Name == SubmitConversationDataFunction {
			submit = &run.ToolCalls[i]
			break
		}
	}
	if submit == nil {
		names := make([]string, 0, len(run.ToolCalls))
		for _, call := range run.ToolCalls {
			names = append(names, call.Name)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, strings.Join(names, ","))
	}

	data := s.parseConversationData(submit.Arguments)
	s.forward(ctx, model.NewWebhookPayload(req.FormData, data, model.CompletionFunctionCall, threadID, req.MessageCount+1, s.now()))

	outputs := make([]assistant.ToolOutput, 0, len(run.ToolCalls))
	for _, call := range run.ToolCalls {
		output := `{"success":true}`
		if call.ID != submit.ID {
			output = `{"success":false,"error":"unsupported function"}`
		}
		outputs = append(outputs, assistant.ToolOutput{ToolCallID: call.ID, Output: output})
	}
	if err := s.backend.SubmitToolOutputs(ctx, threadID, run.ID, outputs); err != nil {
		s.logger.Warn("Failed to acknowledge conversation data submission",
			zap.String("thread_id", threadID),
			zap.String("run_id", run.ID),
			zap.Error(err))
	}

	s.logger.Info("Intake conversation completed",
		zap.String("session_id", req.FormData.SessionID),
		zap.String("thread_id", threadID),
		zap.String("qualification_status", data.QualificationStatus))

	return &model.ChatReplyResponse{
		ThreadID:  threadID,
		Message:   CompletionMessage,
		Completed: true,
	}, nil
}

// parseConversationData never fails: unparseable arguments are forwarded raw
func (s *IntakeChatService) parseConversationData(arguments string) model.ConversationData {
	var data model.ConversationData
	if err := utils.ExtractJSONTo(arguments, &data); err != nil {
		s.logger.Warn("Could not parse submitted conversation data", zap.Error(err))
		return model.ConversationData{
			QualificationStatus: model.QualificationNeedsFollowUp,
			ConversationSummary: "Structured conversation data could not be parsed",
			KeyInsights:         []string{},
			AdditionalData:      map[string]any{"raw_arguments": arguments},
		}
	}
	if data.QualificationStatus == "" {
		data.QualificationStatus = model.QualificationNeedsFollowUp
	}
	return data
}

// forward is best-effort: errors are logged and never change the caller's response
func (s *IntakeChatService) forward(ctx context.Context, payload model.WebhookPayload) {
	if s.forwarder == nil {
		s.logger.Warn("No webhook forwarder configured; dropping session summary",
			zap.String("session_id", payload.SessionID),
			zap.String("reason", string(payload.CompletionReason)))
		return
	}

	// The participant may disconnect; delivery should still be attempted.
	if err := s.forwarder.Forward(context.WithoutCancel(ctx), payload); err != nil {
		s.logger.Error("Failed to forward session summary",
			zap.String("session_id", payload.SessionID),
			zap.String("thread_id", payload.ThreadID),
			zap.String("reason", string(payload.CompletionReason)),
			zap.Error(err))
	}
}

func (s *IntakeChatService) record(ctx context.Context, req model.IntakeChatRequest, result interface{}, err error, elapsed time.Duration) {
	if s.recorder == nil {
		return
	}

	event := model.IntakeEvent{
		SessionID:    req.FormData.SessionID,
		Action:       req.Action,
		ThreadID:     req.ThreadID,
		InquiryType:  req.FormData.Type,
		MessageCount: req.MessageCount,
		FileIDs:      req.FileIDs,
		Outcome:      model.IntakeEventSucceeded,
		DurationMs:   elapsed.Milliseconds(),
	}

	switch {
	case errors.Is(err, ErrRunTimeout):
		event.Outcome = model.IntakeEventTimedOut
	case errors.Is(err, ErrFileTooLarge):
		event.Outcome = model.IntakeEventRejected
	case err != nil:
		event.Outcome = model.IntakeEventFailed
	}
	if err != nil {
		event.ErrorMsg = err.Error()
	}
	if reply, ok := result.(*model.ChatReplyResponse); ok {
		event.ThreadID = reply.ThreadID
		if reply.Completed {
			event.Outcome = model.IntakeEventCompleted
		}
	}
	if upload, ok := result.(*model.UploadFileResponse); ok {
		event.FileIDs = []string{upload.FileID}
	}

	s.recorder.Record(context.WithoutCancel(ctx), event)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

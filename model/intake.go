package model

import "time"

// InquiryType distinguishes the two intake funnels on the marketing site
type InquiryType string

const (
	InquiryTypeCandidate   InquiryType = "candidate"
	InquiryTypeProjectLead InquiryType = "projectlead"
)

// IntakeAction is the action a widget asks the orchestrator to perform
type IntakeAction string

const (
	ActionStart      IntakeAction = "start"
	ActionMessage    IntakeAction = "message"
	ActionClose      IntakeAction = "close"
	ActionTimeout    IntakeAction = "timeout"
	ActionUploadFile IntakeAction = "upload_file"
)

// CompletionReason records which terminal trigger ended a session
type CompletionReason string

const (
	CompletionUserClosed   CompletionReason = "user_closed"
	CompletionTimeout      CompletionReason = "timeout"
	CompletionFunctionCall CompletionReason = "function_call"
)

// QualificationNeedsFollowUp is reported for sessions that ended without structured data
const QualificationNeedsFollowUp = "needs_follow_up"

// FormData is the participant descriptor carried through every action of a session.
// It is immutable for the life of the session.
type FormData struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Email       string      `json:"email" validate:"required,email,max=255"`
	Type        InquiryType `json:"type" validate:"required,oneof=candidate projectlead"`
	SessionID   string      `json:"sessionId" validate:"required,max=200"`
	CompanyName string      `json:"companyName,omitempty" validate:"omitempty,max=200"`
	Phone       string      `json:"phone,omitempty" validate:"omitempty,max=50"`
}

// IntakeChatRequest is the single request shape accepted by the orchestrator
type IntakeChatRequest struct {
	Action       IntakeAction `json:"action" validate:"required,oneof=start message close timeout upload_file"`
	ThreadID     string       `json:"threadId,omitempty" validate:"omitempty,max=500"`
	Message      string       `json:"message,omitempty" validate:"omitempty,max=5000"`
	FormData     FormData     `json:"formData"`
	MessageCount int          `json:"messageCount,omitempty" validate:"min=0,max=1000"`
	FileData     string       `json:"fileData,omitempty" validate:"required_if=Action upload_file,max=15000000"`
	FileName     string       `json:"fileName,omitempty" validate:"required_if=Action upload_file,max=255"`
	FileType     string       `json:"fileType,omitempty" validate:"omitempty,max=100"`
	FileIDs      []string     `json:"fileIds,omitempty" validate:"omitempty,max=5,dive,required,max=500"`
}

// UploadFileResponse is returned for upload_file actions
type UploadFileResponse struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Success  bool   `json:"success"`
}

// ChatReplyResponse is returned for start and message actions.
// Completed is true only for the natural-completion terminal trigger.
type ChatReplyResponse struct {
	ThreadID  string `json:"threadId"`
	Message   string `json:"message"`
	Completed bool   `json:"completed"`
}

// SessionClosedResponse is returned for close and timeout actions
type SessionClosedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FieldViolation describes one failed validation rule
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the orchestrator's failure body
type ErrorResponse struct {
	Error   string           `json:"error"`
	Details []FieldViolation `json:"details,omitempty"`
}

// ConversationData is the structured summary forwarded downstream
type ConversationData struct {
	QualificationStatus string         `json:"qualification_status"`
	ConversationSummary string         `json:"conversation_summary"`
	KeyInsights         []string       `json:"key_insights"`
	NextSteps           string         `json:"next_steps"`
	AdditionalData      map[string]any `json:"additional_data"`
}

// WebhookPayload is delivered to the downstream automation webhook when a session ends
type WebhookPayload struct {
	SessionID        string           `json:"sessionId"`
	FormData         FormData         `json:"formData"`
	ConversationData ConversationData `json:"conversationData"`
	CompletionReason CompletionReason `json:"completionReason"`
	ThreadID         string           `json:"threadId"`
	Timestamp        string           `json:"timestamp"`
	MessageCount     int              `json:"messageCount"`
}

// NewWebhookPayload stamps a payload with the current time in ISO-8601
func NewWebhookPayload(form FormData, data ConversationData, reason CompletionReason, threadID string, messageCount int, now time.Time) WebhookPayload {
	if data.KeyInsights == nil {
		data.KeyInsights = []string{}
	}
	if data.AdditionalData == nil {
		data.AdditionalData = map[string]any{}
	}
	return WebhookPayload{
		SessionID:        form.SessionID,
		FormData:         form,
		ConversationData: data,
		CompletionReason: reason,
		ThreadID:         threadID,
		Timestamp:        now.UTC().Format(time.RFC3339Nano),
		MessageCount:     messageCount,
	}
}

package model

import (
	"time"

	"github.com/lib/pq"
)

// IntakeEventOutcome is the result of one orchestrator action
type IntakeEventOutcome string

const (
	IntakeEventSucceeded IntakeEventOutcome = "succeeded"
	IntakeEventCompleted IntakeEventOutcome = "completed" // natural completion via function call
	IntakeEventRejected  IntakeEventOutcome = "rejected"
	IntakeEventFailed    IntakeEventOutcome = "failed"
	IntakeEventTimedOut  IntakeEventOutcome = "timed_out"
)

// IntakeEvent is an audit row written for every action the orchestrator handles
type IntakeEvent struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	SessionID    string             `gorm:"type:varchar(200);not null;index" json:"session_id"`
	Action       IntakeAction       `gorm:"type:varchar(20);not null" json:"action"`
	ThreadID     string             `gorm:"type:varchar(500);index" json:"thread_id"`
	InquiryType  InquiryType        `gorm:"type:varchar(20)" json:"inquiry_type"`
	MessageCount int                `gorm:"default:0" json:"message_count"`
	FileIDs      pq.StringArray     `gorm:"type:text[]" json:"file_ids"`
	Outcome      IntakeEventOutcome `gorm:"type:varchar(20);not null" json:"outcome"`
	ErrorMsg     string             `gorm:"type:text" json:"error_msg,omitempty"`
	DurationMs   int64              `json:"duration_ms"`
	CreatedAt    time.Time          `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for IntakeEvent
func (IntakeEvent) TableName() string {
	return "intake_events"
}

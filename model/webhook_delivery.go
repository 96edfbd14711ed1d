package model

import (
	"time"

	"gorm.io/datatypes"
)

// DeliveryStatus is the result of one downstream webhook attempt
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliverySkipped   DeliveryStatus = "skipped" // session already forwarded
)

// WebhookDelivery records a terminal summary forwarded to the automation webhook.
// Deliveries are never retried; failed rows exist for follow-up by staff.
type WebhookDelivery struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	SessionID        string           `gorm:"type:varchar(200);not null;index" json:"session_id"`
	ThreadID         string           `gorm:"type:varchar(500)" json:"thread_id"`
	CompletionReason CompletionReason `gorm:"type:varchar(20);not null" json:"completion_reason"`
	Status           DeliveryStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	StatusCode       int              `json:"status_code"`
	ErrorMsg         string           `gorm:"type:text" json:"error_msg,omitempty"`
	Payload          datatypes.JSON   `gorm:"type:jsonb" json:"payload"`
	CreatedAt        time.Time        `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for WebhookDelivery
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}

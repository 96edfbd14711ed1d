package services

import (
	"context"
	"fmt"
	"time"

	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditStore persists intake events and webhook deliveries in PostgreSQL.
// It implements ActivityRecorder and DeliveryStore.
type AuditStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAuditStore creates a new audit store
func NewAuditStore(db *gorm.DB, logger *zap.Logger) *AuditStore {
	return &AuditStore{db: db, logger: utils.OrNop(logger)}
}

// Record stores an intake event. Failures are logged; auditing never fails a request.
func (s *AuditStore) Record(ctx context.Context, event model.IntakeEvent) {
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logger.Warn("Failed to record intake event",
			zap.String("session_id", event.SessionID),
			zap.String("action", string(event.Action)),
			zap.Error(err))
	}
}

// SaveDelivery stores one webhook delivery attempt
func (s *AuditStore) SaveDelivery(ctx context.Context, delivery *model.WebhookDelivery) error {
	return s.db.WithContext(ctx).Create(delivery).Error
}

// PruneBefore deletes audit rows created before cutoff and returns how many were removed
func (s *AuditStore) PruneBefore(ctx context.Context, cutoff time.Time) (events int64, deliveries int64, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff).Delete(&model.IntakeEvent{})
		if res.Error != nil {
			return fmt.Errorf("failed to prune intake events: %w", res.Error)
		}
		events = res.RowsAffected

		res = tx.Where("created_at < ?", cutoff).Delete(&model.WebhookDelivery{})
		if res.Error != nil {
			return fmt.Errorf("failed to prune webhook deliveries: %w", res.Error)
		}
		deliveries = res.RowsAffected
		return nil
	})
	return events, deliveries, err
}

// FailedDeliveriesSince lists failed deliveries newer than since, oldest first
func (s *AuditStore) FailedDeliveriesSince(ctx context.Context, since time.Time) ([]model.WebhookDelivery, error) {
	var deliveries []model.WebhookDelivery
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at >= ?", model.DeliveryFailed, since).
		Order("created_at ASC").
		Find(&deliveries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failed deliveries: %w", err)
	}
	return deliveries, nil
}

// SessionEvents returns the audit trail of one session, oldest first
func (s *AuditStore) SessionEvents(ctx context.Context, sessionID string) ([]model.IntakeEvent, error) {
	var events []model.IntakeEvent
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PruneAuditTrail deletes intake events and webhook deliveries older than the retention window
func (m *CronManager) PruneAuditTrail() {
	started := m.now()
	logID := m.logJobStart(JobPruneAudit)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cutoff := started.AddDate(0, 0, -m.config.RetentionDays)
	events, deliveries, err := m.audit.PruneBefore(ctx, cutoff)
	if err != nil {
		m.logJobError(logID, JobPruneAudit, err, started)
		return
	}

	m.logJobComplete(logID, JobPruneAudit,
		fmt.Sprintf("Removed %d intake events and %d webhook deliveries older than %s",
			events, deliveries, cutoff.Format(time.RFC3339)),
		started)
}

// CheckFailedDeliveries warns about summaries that did not reach the webhook recently.
// Deliveries are never re-sent; the warning is for staff follow-up.
func (m *CronManager) CheckFailedDeliveries() {
	started := m.now()
	logID := m.logJobStart(JobFailedDeliveries)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	failed, err := m.audit.FailedDeliveriesSince(ctx, started.Add(-failedDeliveryWindow))
	if err != nil {
		m.logJobError(logID, JobFailedDeliveries, err, started)
		return
	}

	for _, d := range failed {
		m.logger.Warn("Session summary was not delivered",
			zap.String("session_id", d.SessionID),
			zap.String("reason", string(d.CompletionReason)),
			zap.Int("status_code", d.StatusCode),
			zap.String("error", d.ErrorMsg),
			zap.Time("at", d.CreatedAt))
	}

	m.logJobComplete(logID, JobFailedDeliveries, fmt.Sprintf("%d failed deliveries in the last %s", len(failed), failedDeliveryWindow), started)
}

package cron

import (
	"context"
	"time"

	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobPruneAudit        = "prune_audit_trail"
	JobFailedDeliveries  = "check_failed_deliveries"
	failedDeliveryWindow = 15 * time.Minute
)

// AuditMaintenance is the slice of the audit store the jobs need
type AuditMaintenance interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (events int64, deliveries int64, err error)
	FailedDeliveriesSince(ctx context.Context, since time.Time) ([]model.WebhookDelivery, error)
}

// Config controls job behaviour
type Config struct {
	RetentionDays int
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron   *cron.Cron
	db     *gorm.DB // job run log; nil disables it
	audit  AuditMaintenance
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, audit AuditMaintenance, config Config, logger *zap.Logger) *CronManager {
	if config.RetentionDays <= 0 {
		config.RetentionDays = 90
	}

	return &CronManager{
		// Create cron with seconds precision
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		db:     db,
		audit:  audit,
		config: config,
		logger: utils.OrNop(logger),
		now:    time.Now,
	}
}

// Start registers and starts all cron jobs
func (m *CronManager) Start() error {
	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()
	m.logger.Info("Cron jobs started", zap.Int("jobs", len(m.cron.Entries())))
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (m *CronManager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// Daily at 3 AM: drop audit rows past retention
	if _, err := m.cron.AddFunc("0 0 3 * * *", m.PruneAuditTrail); err != nil {
		return err
	}

	// Every 15 minutes: surface webhook deliveries that failed
	if _, err := m.cron.AddFunc("0 */15 * * * *", m.CheckFailedDeliveries); err != nil {
		return err
	}

	return nil
}

// logJobStart records the start of a cron job and returns its log row id (0 when not logged)
func (m *CronManager) logJobStart(jobName string) uint {
	m.logger.Debug("Starting cron job", zap.String("job", jobName))
	if m.db == nil {
		return 0
	}

	cronLog := model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronJobRunning,
		StartedAt: m.now(),
		Metadata:  datatypes.JSON("{}"),
	}
	if err := m.db.Create(&cronLog).Error; err != nil {
		m.logger.Warn("Failed to record cron job start", zap.String("job", jobName), zap.Error(err))
		return 0
	}
	return cronLog.ID
}

// logJobComplete records successful completion of a cron job
func (m *CronManager) logJobComplete(logID uint, jobName, message string, started time.Time) {
	m.logger.Info("Completed cron job", zap.String("job", jobName), zap.String("result", message))
	m.finishJobLog(logID, started, map[string]interface{}{
		"status":  model.CronJobCompleted,
		"message": message,
	})
}

// logJobError records a cron job error
func (m *CronManager) logJobError(logID uint, jobName string, err error, started time.Time) {
	m.logger.Error("Cron job failed", zap.String("job", jobName), zap.Error(err))
	m.finishJobLog(logID, started, map[string]interface{}{
		"status":    model.CronJobFailed,
		"error_msg": err.Error(),
	})
}

func (m *CronManager) finishJobLog(logID uint, started time.Time, updates map[string]interface{}) {
	if m.db == nil || logID == 0 {
		return
	}
	completed := m.now()
	updates["completed_at"] = completed
	updates["duration"] = completed.Sub(started).Milliseconds()

	if err := m.db.Model(&model.CronJobLog{}).Where("id = ?", logID).Updates(updates).Error; err != nil {
		m.logger.Warn("Failed to update cron job log", zap.Uint("log_id", logID), zap.Error(err))
	}
}

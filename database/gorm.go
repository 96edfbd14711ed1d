package database

import (
	"context"
	"fmt"
	"time"

	"github.com/northbeam/portal-api/config"
	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/utils"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage defines the interface the database implementation must satisfy
type Storage interface {
	Init() error
	Close() error
	HealthCheck(ctx context.Context) error
	DB() *gorm.DB
}

type GORMStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// DSN builds the PostgreSQL data source name from the environment
func DSN(env *config.EnvironmentVariable) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.DB_HOST,
		env.DB_USER_NAME,
		env.DB_PASSWORD,
		env.DB_NAME,
		env.DB_PORT,
		env.DB_SSL_MODE,
	)
}

// StartGORM initializes a GORM connection to PostgreSQL
func StartGORM(env *config.EnvironmentVariable, log *zap.Logger) (*GORMStore, error) {
	log = utils.OrNop(log)

	gormLogger := logger.Default.LogMode(logger.Warn)
	if env.GO_ENV == "production" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.Open(DSN(env)), &gorm.Config{
		Logger:      gormLogger,
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to PostgreSQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Audit writes are small and infrequent
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Connected to PostgreSQL", zap.String("host", env.DB_HOST), zap.String("database", env.DB_NAME))

	return &GORMStore{db: db, logger: log}, nil
}

// Init runs AutoMigrate for the audit models
func (s *GORMStore) Init() error {
	err := s.db.AutoMigrate(
		&model.IntakeEvent{},
		&model.WebhookDelivery{},
		&model.CronJobLog{},
	)
	if err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	s.logger.Info("GORM AutoMigrate completed")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the GORM DB instance for use in services
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

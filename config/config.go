package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadENV loads variables from .env when GO_ENV is unset or "development".
// A missing .env file is tolerated so the same binary runs in containers.
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	GO_ENV string
	PORT   int

	// Database (audit trail)
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string

	// Redis (terminal-forward ledger)
	REDIS_URL string

	// Conversational AI backend
	OPENAI_API_KEY      string
	OPENAI_ASSISTANT_ID string
	OPENAI_BASE_URL     string
	OPENAI_MODEL        string

	// Downstream automation webhook
	INTAKE_WEBHOOK_URL string

	// Widget session tokens
	JWT_SECRET string
	JWT_ISSUER string

	ALLOWED_ORIGINS         string
	BODY_LIMIT_MB           int
	INTAKE_ACTIONS_PER_HOUR int

	// SMTP notifications
	SMTP_HOST           string
	SMTP_PORT           int
	SMTP_USERNAME       string
	SMTP_PASSWORD       string
	SMTP_FROM           string
	INTAKE_NOTIFY_EMAIL string

	// Attachment archive (S3-compatible)
	SPACES_ACCESS_KEY string
	SPACES_SECRET_KEY string
	SPACES_BUCKET     string
	SPACES_REGION     string
	SPACES_ENDPOINT   string

	CRON_ENABLED         bool
	AUDIT_RETENTION_DAYS int
}

func Get() (*EnvironmentVariable, error) {
	envVariables := &EnvironmentVariable{
		GO_ENV: os.Getenv("GO_ENV"),
		PORT:   getEnvInt("PORT", 8080),

		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      getEnvOrDefault("DB_HOST", "localhost"),
		DB_PORT:      getEnvOrDefault("DB_PORT", "5432"),
		DB_SSL_MODE:  getEnvOrDefault("DB_SSL_MODE", "disable"),

		REDIS_URL: os.Getenv("REDIS_URL"),

		OPENAI_API_KEY:      os.Getenv("OPENAI_API_KEY"),
		OPENAI_ASSISTANT_ID: os.Getenv("OPENAI_ASSISTANT_ID"),
		OPENAI_BASE_URL:     os.Getenv("OPENAI_BASE_URL"),
		OPENAI_MODEL:        getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),

		INTAKE_WEBHOOK_URL: os.Getenv("INTAKE_WEBHOOK_URL"),

		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: getEnvOrDefault("JWT_ISSUER", "portal-api"),

		ALLOWED_ORIGINS: getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		BODY_LIMIT_MB:   getEnvInt("BODY_LIMIT_MB", 16),

		INTAKE_ACTIONS_PER_HOUR: getEnvInt("INTAKE_ACTIONS_PER_HOUR", 200),

		SMTP_HOST:           getEnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTP_PORT:           getEnvInt("SMTP_PORT", 587),
		SMTP_USERNAME:       os.Getenv("SMTP_USERNAME"),
		SMTP_PASSWORD:       os.Getenv("SMTP_PASSWORD"),
		SMTP_FROM:           getEnvOrDefault("SMTP_FROM", "noreply@northbeam.dev"),
		INTAKE_NOTIFY_EMAIL: os.Getenv("INTAKE_NOTIFY_EMAIL"),

		SPACES_ACCESS_KEY: os.Getenv("SPACES_ACCESS_KEY"),
		SPACES_SECRET_KEY: os.Getenv("SPACES_SECRET_KEY"),
		SPACES_BUCKET:     os.Getenv("SPACES_BUCKET"),
		SPACES_REGION:     getEnvOrDefault("SPACES_REGION", "nyc3"),
		SPACES_ENDPOINT:   os.Getenv("SPACES_ENDPOINT"),

		CRON_ENABLED:         !strings.EqualFold(os.Getenv("CRON_ENABLED"), "false"), // default to enabled
		AUDIT_RETENTION_DAYS: getEnvInt("AUDIT_RETENTION_DAYS", 90),
	}

	return envVariables, nil
}

// DatabaseConfigured reports whether enough settings exist to open the audit database
func (e *EnvironmentVariable) DatabaseConfigured() bool {
	return e.DB_NAME != "" && e.DB_USER_NAME != ""
}

// SpacesConfigured reports whether the attachment archive is enabled
func (e *EnvironmentVariable) SpacesConfigured() bool {
	return e.SPACES_ACCESS_KEY != "" && e.SPACES_SECRET_KEY != "" && e.SPACES_BUCKET != "" && e.SPACES_ENDPOINT != ""
}

// IsDevelopment is true for local runs
func (e *EnvironmentVariable) IsDevelopment() bool {
	return e.GO_ENV == "" || e.GO_ENV == "development"
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/utils"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const DefaultWebhookTimeout = 10 * time.Second

var (
	ErrWebhookNotConfigured = errors.New("intake webhook url is not configured")
	ErrAlreadyForwarded     = errors.New("session summary was already forwarded")
)

// DeliveryStore persists webhook delivery attempts
type DeliveryStore interface {
	SaveDelivery(ctx context.Context, delivery *model.WebhookDelivery) error
}

// SummaryNotifier sends a human-readable copy of a forwarded summary
type SummaryNotifier interface {
	SendIntakeSummary(payload model.WebhookPayload) error
}

// WebhookService POSTs terminal session summaries to the downstream automation
// webhook. Each session is delivered at most once; failures are not retried.
type WebhookService struct {
	url        string
	httpClient *http.Client
	ledger     TerminalLedger
	store      DeliveryStore
	notifier   SummaryNotifier
	logger     *zap.Logger
}

// WebhookConfig holds configuration for the webhook service
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// NewWebhookService creates a webhook forwarder. ledger, store and notifier may be nil.
func NewWebhookService(config WebhookConfig, ledger TerminalLedger, store DeliveryStore, notifier SummaryNotifier, logger *zap.Logger) *WebhookService {
	if config.Timeout == 0 {
		config.Timeout = DefaultWebhookTimeout
	}
	return &WebhookService{
		url:        config.URL,
		httpClient: &http.Client{Timeout: config.Timeout},
		ledger:     ledger,
		store:      store,
		notifier:   notifier,
		logger:     utils.OrNop(logger),
	}
}

// Forward delivers one terminal summary
func (s *WebhookService) Forward(ctx context.Context, payload model.WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	if s.url == "" {
		s.save(ctx, payload, body, model.DeliverySkipped, 0, ErrWebhookNotConfigured)
		return ErrWebhookNotConfigured
	}

	if s.ledger != nil {
		claimed, err := s.ledger.Claim(ctx, payload.SessionID)
		switch {
		case err != nil:
			// Without the ledger duplicates are possible but the summary is not lost.
			s.logger.Warn("Terminal ledger unavailable", zap.String("session_id", payload.SessionID), zap.Error(err))
		case !claimed:
			s.logger.Info("Dropping duplicate session summary",
				zap.String("session_id", payload.SessionID),
				zap.String("reason", string(payload.CompletionReason)))
			s.save(ctx, payload, body, model.DeliverySkipped, 0, ErrAlreadyForwarded)
			return ErrAlreadyForwarded
		}
	}

	statusCode, err := s.post(ctx, body)
	if err != nil {
		if s.ledger != nil {
			if relErr := s.ledger.Release(ctx, payload.SessionID); relErr != nil {
				s.logger.Warn("Failed to release terminal claim", zap.String("session_id", payload.SessionID), zap.Error(relErr))
			}
		}
		s.save(ctx, payload, body, model.DeliveryFailed, statusCode, err)
		return err
	}

	s.save(ctx, payload, body, model.DeliveryDelivered, statusCode, nil)
	s.logger.Info("Forwarded session summary",
		zap.String("session_id", payload.SessionID),
		zap.String("reason", string(payload.CompletionReason)),
		zap.Int("status", statusCode))

	if s.notifier != nil {
		if err := s.notifier.SendIntakeSummary(payload); err != nil {
			s.logger.Warn("Failed to email session summary", zap.String("session_id", payload.SessionID), zap.Error(err))
		}
	}
	return nil
}

func (s *WebhookService) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *WebhookService) save(ctx context.Context, payload model.WebhookPayload, body []byte, status model.DeliveryStatus, statusCode int, deliveryErr error) {
	if s.store == nil {
		return
	}
	delivery := &model.WebhookDelivery{
		SessionID:        payload.SessionID,
		ThreadID:         payload.ThreadID,
		CompletionReason: payload.CompletionReason,
		Status:           status,
		StatusCode:       statusCode,
		Payload:          datatypes.JSON(body),
	}
	if deliveryErr != nil {
		delivery.ErrorMsg = deliveryErr.Error()
	}
	if err := s.store.SaveDelivery(ctx, delivery); err != nil {
		s.logger.Warn("Failed to record webhook delivery", zap.String("session_id", payload.SessionID), zap.Error(err))
	}
}

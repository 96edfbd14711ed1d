package services

import (
	"crypto/tls"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/northbeam/portal-api/model"
	"github.com/northbeam/portal-api/utils"
	"go.uber.org/zap"
)

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	NotifyTo string
}

// EmailService handles sending emails via SMTP
type EmailService struct {
	config EmailConfig
	logger *zap.Logger
	send   func(to, subject, htmlBody string) error
}

// NewEmailService creates a new email service instance
func NewEmailService(config EmailConfig, logger *zap.Logger) *EmailService {
	e := &EmailService{config: config, logger: utils.OrNop(logger)}
	e.send = e.sendEmail
	return e
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.config.Username != "" && e.config.Password != "" && e.config.NotifyTo != ""
}

// SendIntakeSummary emails staff a readable copy of a forwarded session summary
func (e *EmailService) SendIntakeSummary(payload model.WebhookPayload) error {
	if !e.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}

	subject := headerSafe.Replace(fmt.Sprintf("[%s] %s (%s)",
		inquiryLabel(payload.FormData.Type),
		payload.FormData.Name,
		payload.ConversationData.QualificationStatus))

	if err := e.send(e.config.NotifyTo, subject, buildIntakeSummaryBody(payload)); err != nil {
		return err
	}

	e.logger.Info("Intake summary email sent", zap.String("session_id", payload.SessionID))
	return nil
}

var headerSafe = strings.NewReplacer("\r", " ", "\n", " ")

func inquiryLabel(t model.InquiryType) string {
	if t == model.InquiryTypeProjectLead {
		return "Project lead"
	}
	return "Candidate"
}

func buildIntakeSummaryBody(payload model.WebhookPayload) string {
	form := payload.FormData
	data := payload.ConversationData

	var insights strings.Builder
	for _, insight := range data.KeyInsights {
		insights.WriteString("<li>")
		insights.WriteString(html.EscapeString(insight))
		insights.WriteString("</li>")
	}
	if insights.Len() == 0 {
		insights.WriteString("<li>None recorded</li>")
	}

	company := form.CompanyName
	if company == "" {
		company = "-"
	}
	nextSteps := data.NextSteps
	if nextSteps == "" {
		nextSteps = "-"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Intake summary</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto; padding: 20px; }
        th { text-align: left; padding-right: 16px; color: #666; font-weight: normal; }
        .status { display: inline-block; padding: 2px 10px; border-radius: 10px; background: #eef3ff; color: #1d3f8a; }
    </style>
</head>
<body>
    <h2>%s</h2>
    <p><span class="status">%s</span> &middot; ended by %s</p>
    <table>
        <tr><th>Email</th><td>%s</td></tr>
        <tr><th>Company</th><td>%s</td></tr>
        <tr><th>Messages</th><td>%d</td></tr>
        <tr><th>Session</th><td>%s</td></tr>
        <tr><th>Thread</th><td>%s</td></tr>
    </table>
    <h3>Summary</h3>
    <p>%s</p>
    <h3>Key insights</h3>
    <ul>%s</ul>
    <h3>Next steps</h3>
    <p>%s</p>
</body>
</html>`,
		html.EscapeString(form.Name),
		html.EscapeString(data.QualificationStatus),
		html.EscapeString(string(payload.CompletionReason)),
		html.EscapeString(form.Email),
		html.EscapeString(company),
		payload.MessageCount,
		html.EscapeString(payload.SessionID),
		html.EscapeString(payload.ThreadID),
		html.EscapeString(data.ConversationSummary),
		insights.String(),
		html.EscapeString(nextSteps),
	)
}

// sendEmail sends an email using SMTP with STARTTLS
func (e *EmailService) sendEmail(to, subject, htmlBody string) error {
	headers := []string{
		"From: Northbeam Intake <" + e.config.From + ">",
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	var message strings.Builder
	for _, h := range headers {
		message.WriteString(h)
		message.WriteString("\r\n")
	}
	message.WriteString("\r\n")
	message.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)

	conn, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	if err := conn.StartTLS(&tls.Config{ServerName: e.config.Host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if err := conn.Auth(smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := conn.Mail(e.config.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := conn.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write([]byte(message.String())); err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return conn.Quit()
}

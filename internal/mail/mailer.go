// Package mail sends transactional email.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/loopio/feedback-tracker/internal/config"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// Mailer delivers one message. Body is HTML.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// New returns a Brevo mailer when an API key is configured and a log-only
// mailer otherwise.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if cfg.BrevoAPIKey == "" {
		logger.Warn("BREVO_API_KEY not provided; emails will only be logged")
		return &LogMailer{logger: logger}
	}
	return NewBrevoMailer(cfg, brevoEndpoint, &http.Client{Timeout: 15 * time.Second})
}

type brevoAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoRequest struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// BrevoMailer posts to Brevo's transactional email API.
type BrevoMailer struct {
	apiKey   string
	sender   brevoAddress
	endpoint string
	client   *http.Client
}

// NewBrevoMailer builds a mailer against endpoint.
func NewBrevoMailer(cfg config.MailConfig, endpoint string, client *http.Client) *BrevoMailer {
	return &BrevoMailer{
		apiKey:   cfg.BrevoAPIKey,
		sender:   brevoAddress{Name: cfg.SenderName, Email: cfg.SenderEmail},
		endpoint: endpoint,
		client:   client,
	}
}

func (m *BrevoMailer) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(brevoRequest{
		Sender:      m.sender,
		To:          []brevoAddress{{Email: to}},
		Subject:     subject,
		HTMLContent: body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", m.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("brevo responded %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer builds a log-only mailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("email not sent (log mailer)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)))
	return nil
}

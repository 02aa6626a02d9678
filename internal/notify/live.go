package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"

	"github.com/google/uuid"
)

// SMTPConfig holds live email transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers email over SMTP with plain auth.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender constructs a live SMTP transport.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(_ context.Context, to, subject, body string) (string, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s", s.cfg.From, to, subject, body)
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return "smtp-" + uuid.NewString()[:8], nil
}

// SMSAPIConfig holds the HTTP SMS provider settings.
type SMSAPIConfig struct {
	APIURL string
	APIKey string
}

// HTTPSMSSender delivers SMS through a JSON HTTP provider API.
type HTTPSMSSender struct {
	cfg    SMSAPIConfig
	client *http.Client
}

// NewHTTPSMSSender constructs a live SMS transport. A nil client falls back
// to http.DefaultClient.
func NewHTTPSMSSender(cfg SMSAPIConfig, client *http.Client) *HTTPSMSSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSMSSender{cfg: cfg, client: client}
}

func (s *HTTPSMSSender) Send(ctx context.Context, phone, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"to":      phone,
		"message": text,
		"api_key": s.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms api status %d", resp.StatusCode)
	}
	return "sms-" + uuid.NewString()[:8], nil
}

// Package notify delivers RMA emails with bounded retries and sends
// fallback/confirmation SMS. Live transports are swapped for deterministic
// stubs at construction time when credentials are absent, so the rest of
// the workflow operates identically with or without configured providers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/returnhub/returnhub/internal/template"
)

var (
	// ErrInvalidPhone marks a phone number failing the numeric pattern.
	// It is a validation failure: fail fast, never retried.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrRetriesExhausted is returned once every email attempt has failed.
	ErrRetriesExhausted = errors.New("email retries exhausted")
)

// Channel identifies the transport that carried (or failed to carry) a message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelNone  Channel = "none"
)

// DeliveryResult describes the outcome of one delivery operation.
type DeliveryResult struct {
	Delivered bool    `json:"delivered"`
	Channel   Channel `json:"channel"`
	MessageID string  `json:"message_id,omitempty"`
	Attempts  int     `json:"attempts"`
}

// EmailSender is the outbound email transport.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// SMSSender is the outbound SMS transport.
type SMSSender interface {
	Send(ctx context.Context, phone, text string) (string, error)
}

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// normalizePhone strips common separators and validates the remainder
// against the numeric pattern.
func normalizePhone(phone string) (string, error) {
	cleaned := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		switch c := phone[i]; {
		case c >= '0' && c <= '9':
			cleaned = append(cleaned, c)
		case c == '+' && len(cleaned) == 0:
			cleaned = append(cleaned, c)
		case c == ' ' || c == '-' || c == '.' || c == '(' || c == ')':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
		}
	}
	if !phonePattern.MatchString(string(cleaned)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return string(cleaned), nil
}

// Config captures notifier behaviour limits.
type Config struct {
	MaxEmailAttempts int
	RetryBackoff     time.Duration
	MaxSMSLength     int
}

// Notifier coordinates email and SMS delivery.
type Notifier struct {
	email  EmailSender
	sms    SMSSender
	cfg    Config
	logger *slog.Logger
}

// New constructs a Notifier over the supplied transports.
func New(email EmailSender, sms SMSSender, cfg Config, logger *slog.Logger) *Notifier {
	if cfg.MaxEmailAttempts <= 0 {
		cfg.MaxEmailAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxSMSLength <= 0 {
		cfg.MaxSMSLength = 160
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{email: email, sms: sms, cfg: cfg, logger: logger}
}

// SendEmail attempts delivery of the draft, retrying transient transport
// failures up to the configured attempt limit with a fixed backoff. On
// exhaustion it returns ErrRetriesExhausted; channel fallback is the
// orchestrator's decision, never the notifier's.
func (n *Notifier) SendEmail(ctx context.Context, draft template.EmailDraft) (DeliveryResult, error) {
	res := DeliveryResult{Channel: ChannelEmail}
	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxEmailAttempts; attempt++ {
		res.Attempts = attempt
		msgID, err := n.email.Send(ctx, draft.ToEmail, draft.Subject, draft.Body)
		if err == nil {
			res.Delivered = true
			res.MessageID = msgID
			n.logger.Info("email sent", "to", draft.ToEmail, "msg_id", msgID, "attempts", attempt)
			return res, nil
		}
		lastErr = err
		n.logger.Warn("email send attempt failed", "to", draft.ToEmail, "attempt", attempt, "error", err)
		if attempt < n.cfg.MaxEmailAttempts {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(n.cfg.RetryBackoff):
			}
		}
	}
	return res, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, res.Attempts, lastErr)
}

// SendSMS validates the phone number, truncates the text to the configured
// maximum and performs a single send attempt.
func (n *Notifier) SendSMS(ctx context.Context, phone, text string) (DeliveryResult, error) {
	res := DeliveryResult{Channel: ChannelSMS}
	normalized, err := normalizePhone(phone)
	if err != nil {
		return res, err
	}
	if len(text) > n.cfg.MaxSMSLength {
		text = text[:n.cfg.MaxSMSLength]
	}
	res.Attempts = 1
	msgID, err := n.sms.Send(ctx, normalized, text)
	if err != nil {
		n.logger.Warn("sms send failed", "error", err)
		return res, err
	}
	res.Delivered = true
	res.MessageID = msgID
	n.logger.Info("sms sent", "msg_id", msgID)
	return res, nil
}

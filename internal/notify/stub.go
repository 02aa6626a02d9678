package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// StubEmailSender reports success without touching the network. Its message
// ids are derived from a hash of the draft, so repeated sends of the same
// draft produce the same id.
type StubEmailSender struct{}

func (StubEmailSender) Send(_ context.Context, to, subject, body string) (string, error) {
	return "stub-" + digest(to, subject, body), nil
}

// StubSMSSender is the SMS counterpart of StubEmailSender.
type StubSMSSender struct{}

func (StubSMSSender) Send(_ context.Context, phone, text string) (string, error) {
	return "sms-stub-" + digest(phone, text), nil
}

func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

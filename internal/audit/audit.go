// Package audit appends redacted submission records to an append-only JSON
// sink. Order ids and phone numbers are truncated before a Record exists;
// full values never reach the sink.
package audit

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/returnhub/returnhub/internal/notify"
	"github.com/returnhub/returnhub/internal/template"
)

// Record is one redacted audit entry.
type Record struct {
	Vendor       string    `json:"vendor"`
	OrderIDLast4 string    `json:"order_id_last4"`
	Intent       string    `json:"intent"`
	Reason       string    `json:"reason"`
	MsgID        string    `json:"msg_id,omitempty"`
	PhoneLast4   string    `json:"phone_last4,omitempty"`
	Delivered    bool      `json:"delivered"`
	Channel      string    `json:"channel"`
	Time         time.Time `json:"time"`
}

// Last4 truncates a value to its final four characters. Shorter values are
// returned unchanged.
func Last4(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

// PhoneLast4 keeps the last four digits of a phone number, dropping
// everything else.
func PhoneLast4(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if c := phone[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	return Last4(string(digits))
}

// Logger emits audit records as JSON lines.
type Logger struct {
	enabled bool
	mu      sync.Mutex
	out     io.Writer
}

// New creates an audit logger writing to out. A nil writer falls back to
// the process log writer.
func New(enabled bool, out io.Writer) *Logger {
	if out == nil {
		out = log.Writer()
	}
	return &Logger{enabled: enabled, out: out}
}

// Record redacts the case and appends one entry for the delivery attempt.
// Failed deliveries are still recorded. The returned error is advisory:
// callers treat logging failure as non-fatal.
func (l *Logger) Record(c template.Case, res notify.DeliveryResult) error {
	if !l.enabled {
		return nil
	}
	rec := Record{
		Vendor:       c.Vendor,
		OrderIDLast4: Last4(c.OrderID),
		Intent:       string(c.Intent),
		Reason:       string(c.Reason),
		MsgID:        res.MessageID,
		PhoneLast4:   PhoneLast4(c.ContactPhone),
		Delivered:    res.Delivered,
		Channel:      string(res.Channel),
		Time:         time.Now().UTC(),
	}
	return l.write(rec)
}

// Log appends a pre-redacted record, used by the log_submission tool where
// the caller already holds only the last-4 form.
func (l *Logger) Log(rec Record) error {
	if !l.enabled {
		return nil
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	rec.OrderIDLast4 = Last4(rec.OrderIDLast4)
	return l.write(rec)
}

func (l *Logger) write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.out.Write(append(data, '\n'))
	return err
}

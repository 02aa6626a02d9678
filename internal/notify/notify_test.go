package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/returnhub/returnhub/internal/template"
)

type scriptedEmailSender struct {
	calls    int32
	failures int
	err      error
}

func (s *scriptedEmailSender) Send(_ context.Context, to, subject, body string) (string, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if int(n) <= s.failures {
		if s.err != nil {
			return "", s.err
		}
		return "", errors.New("transient failure")
	}
	return "msg-ok", nil
}

type recordingSMSSender struct {
	calls int32
	phone string
	text  string
	err   error
}

func (s *recordingSMSSender) Send(_ context.Context, phone, text string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	s.phone = phone
	s.text = text
	if s.err != nil {
		return "", s.err
	}
	return "sms-ok", nil
}

func draft() template.EmailDraft {
	return template.EmailDraft{ToEmail: "returns@amazon.com", Subject: "s", Body: "b"}
}

func fastConfig() Config {
	return Config{MaxEmailAttempts: 3, RetryBackoff: time.Millisecond, MaxSMSLength: 160}
}

func TestSendEmailFirstAttempt(t *testing.T) {
	sender := &scriptedEmailSender{}
	n := New(sender, &recordingSMSSender{}, fastConfig(), nil)

	res, err := n.SendEmail(context.Background(), draft())
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, ChannelEmail, res.Channel)
	assert.Equal(t, "msg-ok", res.MessageID)
	assert.Equal(t, 1, res.Attempts)
}

func TestSendEmailRetriesTransientFailure(t *testing.T) {
	sender := &scriptedEmailSender{failures: 2}
	n := New(sender, &recordingSMSSender{}, fastConfig(), nil)

	res, err := n.SendEmail(context.Background(), draft())
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&sender.calls))
}

func TestSendEmailExhaustsRetries(t *testing.T) {
	sender := &scriptedEmailSender{failures: 99}
	n := New(sender, &recordingSMSSender{}, fastConfig(), nil)

	res, err := n.SendEmail(context.Background(), draft())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.False(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&sender.calls), "retry count must be bounded")
}

func TestSendEmailHonorsContext(t *testing.T) {
	sender := &scriptedEmailSender{failures: 99}
	n := New(sender, &recordingSMSSender{}, Config{MaxEmailAttempts: 3, RetryBackoff: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := n.SendEmail(ctx, draft())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sender.calls))
}

func TestStubEmailDeterministic(t *testing.T) {
	n := New(StubEmailSender{}, StubSMSSender{}, fastConfig(), nil)

	first, err := n.SendEmail(context.Background(), draft())
	require.NoError(t, err)
	second, err := n.SendEmail(context.Background(), draft())
	require.NoError(t, err)

	assert.True(t, first.Delivered)
	assert.Equal(t, first.MessageID, second.MessageID, "stub ids derive from the draft")
	assert.Contains(t, first.MessageID, "stub-")

	other := draft()
	other.Subject = "different"
	third, err := n.SendEmail(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, first.MessageID, third.MessageID)
}

func TestSendSMS(t *testing.T) {
	sms := &recordingSMSSender{}
	n := New(StubEmailSender{}, sms, fastConfig(), nil)

	res, err := n.SendSMS(context.Background(), "+1 (234) 567-8901", "hello")
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, ChannelSMS, res.Channel)
	assert.Equal(t, "+12345678901", sms.phone)
}

func TestSendSMSTruncates(t *testing.T) {
	sms := &recordingSMSSender{}
	n := New(StubEmailSender{}, sms, Config{MaxEmailAttempts: 1, RetryBackoff: time.Millisecond, MaxSMSLength: 10}, nil)

	_, err := n.SendSMS(context.Background(), "+12345678901", "0123456789ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", sms.text)
}

func TestSendSMSInvalidPhoneFailsFast(t *testing.T) {
	sms := &recordingSMSSender{}
	n := New(StubEmailSender{}, sms, fastConfig(), nil)

	cases := []string{"", "12345", "not-a-phone", "123456789x", "+++12345678901"}
	for _, phone := range cases {
		_, err := n.SendSMS(context.Background(), phone, "hi")
		assert.ErrorIs(t, err, ErrInvalidPhone, "phone %q", phone)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&sms.calls), "invalid phones must never reach the transport")
}

func TestSendSMSTransportError(t *testing.T) {
	sms := &recordingSMSSender{err: errors.New("provider down")}
	n := New(StubEmailSender{}, sms, fastConfig(), nil)

	res, err := n.SendSMS(context.Background(), "+12345678901", "hi")
	require.Error(t, err)
	assert.False(t, res.Delivered)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sms.calls), "sms is not retried")
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		invalid bool
	}{
		{in: "+12345678901", want: "+12345678901"},
		{in: "1234567890", want: "1234567890"},
		{in: "(123) 456-78.90", want: "1234567890"},
		{in: "123456789", invalid: true},
		{in: "1234567890123456", invalid: true},
		{in: "12345#67890", invalid: true},
	}
	for _, tc := range cases {
		got, err := normalizePhone(tc.in)
		if tc.invalid {
			assert.ErrorIs(t, err, ErrInvalidPhone, "phone %q", tc.in)
			continue
		}
		require.NoError(t, err, "phone %q", tc.in)
		assert.Equal(t, tc.want, got)
	}
}

// Package workflow orchestrates one return/refund request: render the RMA
// email, deliver it through the idempotency store, fall back to SMS when
// email delivery fails, and record a redacted audit entry. The engine
// always returns a well-formed Outcome; no component error escapes it.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/returnhub/returnhub/internal/audit"
	"github.com/returnhub/returnhub/internal/idempotency"
	"github.com/returnhub/returnhub/internal/metrics"
	"github.com/returnhub/returnhub/internal/notify"
	"github.com/returnhub/returnhub/internal/template"
	"github.com/returnhub/returnhub/internal/vendors"
)

// Status classifies a finished workflow.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Outcome is the structured result of one workflow invocation.
type Outcome struct {
	Status               Status  `json:"status"`
	EmailSent            bool    `json:"email_sent"`
	SMSSent              bool    `json:"sms_sent"`
	Logged               bool    `json:"logged"`
	MsgID                string  `json:"msg_id,omitempty"`
	ToEmail              string  `json:"to_email,omitempty"`
	Subject              string  `json:"subject,omitempty"`
	Error                string  `json:"error,omitempty"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
}

// Config bounds engine execution.
type Config struct {
	Timeout time.Duration
}

// Engine wires the workflow collaborators together.
type Engine struct {
	store    *idempotency.Store
	notifier *notify.Notifier
	auditLog *audit.Logger
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	timeout  time.Duration
}

// New constructs an Engine. Metrics and tracer may be nil-valued wrappers
// but the store, notifier and audit logger are required collaborators.
func New(store *idempotency.Store, notifier *notify.Notifier, auditLog *audit.Logger, m *metrics.Metrics, logger *slog.Logger, tracer trace.Tracer, cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("workflow")
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		auditLog: auditLog,
		metrics:  m,
		logger:   logger,
		tracer:   tracer,
		timeout:  cfg.Timeout,
	}
}

// Timeout returns the wall-clock deadline applied to each invocation.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// run carries the mutable data one invocation accumulates while stepping
// through the state machine.
type run struct {
	c        template.Case
	key      string
	draft    template.EmailDraft
	email    notify.DeliveryResult
	sms      notify.DeliveryResult
	logged   bool
	timedOut bool
	errMsg   string
}

// Execute drives the case through RENDER -> DELIVER -> FALLBACK -> LOG and
// classifies the result. The invocation is bounded by the engine timeout;
// on expiry outstanding attempts are abandoned but completed side effects
// are not undone.
func (e *Engine) Execute(ctx context.Context, c template.Case, idemKey string) Outcome {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "workflow.return",
		trace.WithAttributes(
			attribute.String("vendor", c.Vendor),
			attribute.String("intent", string(c.Intent)),
			attribute.String("reason", string(c.Reason)),
		))
	defer span.End()

	r := &run{c: c, key: idemKey}
	if r.key == "" {
		r.key = idempotency.DeriveKey(c.Vendor, c.OrderID, c.ItemSKU, string(c.Intent))
	}

	state := RENDER
	for state != DONE {
		if ctx.Err() != nil {
			r.timedOut = true
			r.errMsg = "workflow deadline exceeded"
			state = e.transition(state, ETimeout)
			continue
		}
		var ev Event
		switch state {
		case RENDER:
			ev = e.stepRender(ctx, r)
		case DELIVER:
			ev = e.stepDeliver(ctx, r)
		case FALLBACK:
			ev = e.stepFallback(ctx, r)
		case LOG:
			ev = e.stepLog(ctx, r)
		}
		state = e.transition(state, ev)
	}

	out := e.classify(r)
	out.ExecutionTimeSeconds = time.Since(start).Seconds()
	if e.metrics != nil {
		e.metrics.WorkflowOutcome(string(out.Status), out.ExecutionTimeSeconds)
	}
	e.logger.Info("return workflow finished",
		"vendor", c.Vendor,
		"order_id_last4", audit.Last4(c.OrderID),
		"status", out.Status,
		"email_sent", out.EmailSent,
		"sms_sent", out.SMSSent,
		"execution_time_seconds", out.ExecutionTimeSeconds,
	)
	return out
}

func (e *Engine) transition(from State, ev Event) State {
	next, err := Decide(from, ev)
	if err != nil {
		// The step functions only emit enumerated events, so this is a
		// programming error; fail the invocation rather than loop.
		e.logger.Error("illegal workflow transition", "from", from, "event", ev)
		return DONE
	}
	return next
}

func (e *Engine) stepRender(ctx context.Context, r *run) Event {
	_, span := e.span(ctx, "workflow.render")
	defer span.End()

	draft, err := template.Render(r.c)
	if err != nil {
		r.errMsg = err.Error()
		return ERenderFailed
	}
	r.draft = draft
	if e.metrics != nil {
		e.metrics.RMAEmailGenerated(r.c.Vendor, string(r.c.Intent), string(r.c.Reason))
	}
	return ERendered
}

func (e *Engine) stepDeliver(ctx context.Context, r *run) Event {
	ctx, span := e.span(ctx, "workflow.deliver")
	defer span.End()

	data, cached, err := e.store.GetOrCompute(ctx, r.key, func(ctx context.Context) ([]byte, error) {
		res, sendErr := e.notifier.SendEmail(ctx, r.draft)
		r.email = res
		if sendErr != nil {
			// Failed attempts are not cached; a later retry may succeed.
			return nil, sendErr
		}
		return json.Marshal(res)
	})
	if err != nil {
		if r.errMsg == "" {
			r.errMsg = err.Error()
		}
		if e.metrics != nil {
			e.metrics.EmailSent(false, r.email.Attempts)
		}
		return EDeliveryFailed
	}
	if unmarshalErr := json.Unmarshal(data, &r.email); unmarshalErr != nil {
		e.logger.Warn("corrupt idempotency entry, treating as delivery failure", "key", r.key, "error", unmarshalErr)
		r.errMsg = "corrupt idempotency entry"
		return EDeliveryFailed
	}
	if cached {
		e.logger.Info("delivery collapsed onto cached result", "key", r.key, "msg_id", r.email.MessageID)
	}
	if e.metrics != nil {
		e.metrics.EmailSent(r.email.Delivered, r.email.Attempts)
	}
	if !r.email.Delivered {
		return EDeliveryFailed
	}
	return EDelivered
}

func (e *Engine) stepFallback(ctx context.Context, r *run) Event {
	ctx, span := e.span(ctx, "workflow.fallback")
	defer span.End()

	if r.c.ContactPhone == "" {
		return EFallbackSkipped
	}
	text := fallbackText(r.c, r.email.MessageID)
	res, err := e.notifier.SendSMS(ctx, r.c.ContactPhone, text)
	r.sms = res
	if e.metrics != nil {
		e.metrics.SMSSent(err == nil && res.Delivered)
	}
	if err != nil {
		// Fallback failure never escalates; it is recorded and the
		// workflow proceeds to LOG.
		if errors.Is(err, notify.ErrInvalidPhone) && r.errMsg == "" {
			r.errMsg = err.Error()
		}
		return EFallbackFailed
	}
	return EFallbackSent
}

func (e *Engine) stepLog(ctx context.Context, r *run) Event {
	_, span := e.span(ctx, "workflow.log")
	defer span.End()

	res := r.email
	if !res.Delivered && r.sms.Delivered {
		res = r.sms
	}
	if res.Channel == "" {
		res.Channel = notify.ChannelNone
	}
	if err := e.auditLog.Record(r.c, res); err != nil {
		e.logger.Warn("audit record failed", "vendor", r.c.Vendor, "error", err)
		return ELogFailed
	}
	r.logged = true
	if e.metrics != nil {
		e.metrics.SubmissionLogged(r.c.Vendor, string(r.c.Intent))
	}
	return ELogged
}

// classify maps the accumulated run data onto the outcome taxonomy:
// completed when email was delivered and the attempt was logged, partial
// when only part of the pipeline succeeded, failed otherwise.
func (e *Engine) classify(r *run) Outcome {
	out := Outcome{
		EmailSent: r.email.Delivered,
		SMSSent:   r.sms.Delivered,
		Logged:    r.logged,
		ToEmail:   r.draft.ToEmail,
		Subject:   r.draft.Subject,
		Error:     r.errMsg,
	}
	switch {
	case r.timedOut:
		out.Status = StatusFailed
	case r.email.Delivered && r.logged:
		out.Status = StatusCompleted
	case r.email.Delivered:
		out.Status = StatusPartial
	case r.sms.Delivered:
		out.Status = StatusPartial
	default:
		out.Status = StatusFailed
	}
	if r.email.MessageID != "" {
		out.MsgID = r.email.MessageID
	} else if r.sms.MessageID != "" {
		out.MsgID = r.sms.MessageID
	}
	if out.Status == StatusFailed && out.Error == "" {
		out.Error = "no delivery channel succeeded"
	}
	return out
}

func (e *Engine) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name)
}

func fallbackText(c template.Case, emailMsgID string) string {
	name := vendors.Lookup(c.Vendor).Name
	ref := emailMsgID
	if ref == "" {
		ref = "pending"
	}
	return fmt.Sprintf("Your %s request for %s order ending %s could not be emailed. Reference %s; we will follow up shortly.",
		c.Intent, name, audit.Last4(c.OrderID), ref)
}

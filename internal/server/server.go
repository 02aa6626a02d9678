// Package server is the thin HTTP surface over the workflow engine and
// tool operations. Request schema validation happens here via gin binding
// tags; everything behind it works on validated Case records.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/returnhub/returnhub/internal/audit"
	"github.com/returnhub/returnhub/internal/config"
	"github.com/returnhub/returnhub/internal/idempotency"
	"github.com/returnhub/returnhub/internal/limiter"
	"github.com/returnhub/returnhub/internal/metrics"
	"github.com/returnhub/returnhub/internal/notify"
	"github.com/returnhub/returnhub/internal/template"
	"github.com/returnhub/returnhub/internal/vendors"
	"github.com/returnhub/returnhub/internal/workflow"
)

// Server wraps the HTTP engine and its collaborators.
type Server struct {
	cfg      config.Config
	engine   *gin.Engine
	wf       *workflow.Engine
	notifier *notify.Notifier
	store    *idempotency.Store
	auditLog *audit.Logger
	limiter  *limiter.Limiter
	logger   *slog.Logger
}

// New constructs a server with all dependencies wired.
func New(cfg config.Config, wf *workflow.Engine, notifier *notify.Notifier, store *idempotency.Store, auditLog *audit.Logger, lim *limiter.Limiter, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		wf:       wf,
		notifier: notifier,
		store:    store,
		auditLog: auditLog,
		limiter:  lim,
		logger:   logger,
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	tools := r.Group("/tools")
	tools.POST("/make_rma_email", s.handleMakeRMAEmail)
	tools.POST("/send_email", s.handleSendEmail)
	tools.POST("/send_sms", s.handleSendSMS)
	tools.POST("/log_submission", s.handleLogSubmission)

	wfGroup := r.Group("/workflow")
	wfGroup.POST("/return", s.rateLimit, s.handleReturnWorkflow)
	wfGroup.POST("/policy", s.handlePolicy)
	wfGroup.GET("/status", s.handleWorkflowStatus)

	s.engine = r
	return s
}

// Handler exposes the HTTP handler for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run starts the HTTP server until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) rateLimit(c *gin.Context) {
	if err := s.limiter.Allow(c.ClientIP()); err != nil {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": config.Version,
		"time":    time.Now().UTC(),
	})
}

// caseRequest is the wire form of a Case plus the optional client key.
type caseRequest struct {
	Vendor         string   `json:"vendor" binding:"required"`
	OrderID        string   `json:"order_id" binding:"required"`
	ItemSKU        string   `json:"item_sku" binding:"required"`
	Intent         string   `json:"intent" binding:"required,oneof=return refund replacement"`
	Reason         string   `json:"reason" binding:"required,oneof=damaged missing wrong_item not_as_described other"`
	EvidenceURLs   []string `json:"evidence_urls"`
	ContactEmail   string   `json:"contact_email" binding:"omitempty,email"`
	ContactPhone   string   `json:"contact_phone"`
	IdempotencyKey string   `json:"idempotency_key"`
}

func (r caseRequest) toCase() template.Case {
	return template.Case{
		Vendor:       r.Vendor,
		OrderID:      r.OrderID,
		ItemSKU:      r.ItemSKU,
		Intent:       template.Intent(r.Intent),
		Reason:       template.Reason(r.Reason),
		EvidenceURLs: r.EvidenceURLs,
		ContactEmail: r.ContactEmail,
		ContactPhone: r.ContactPhone,
	}
}

func (s *Server) handleMakeRMAEmail(c *gin.Context) {
	var req caseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	draft, err := template.Render(req.toCase())
	if err != nil {
		if errors.Is(err, template.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, draft)
}

type sendEmailRequest struct {
	To             string `json:"to" binding:"required,email"`
	Subject        string `json:"subject" binding:"required"`
	Body           string `json:"body" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

type sendEmailResponse struct {
	OK    bool   `json:"ok"`
	MsgID string `json:"msg_id,omitempty"`
}

func (s *Server) handleSendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	draft := template.EmailDraft{ToEmail: req.To, Subject: req.Subject, Body: req.Body}

	send := func(ctx context.Context) (notify.DeliveryResult, error) {
		return s.notifier.SendEmail(ctx, draft)
	}

	var res notify.DeliveryResult
	var err error
	if req.IdempotencyKey != "" {
		if !idempotency.ValidateKey(req.IdempotencyKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid idempotency key format"})
			return
		}
		res, err = deliverIdempotent(c.Request.Context(), s.store, req.IdempotencyKey, send)
	} else {
		res, err = send(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send email"})
		return
	}
	c.JSON(http.StatusOK, sendEmailResponse{OK: res.Delivered, MsgID: res.MessageID})
}

type sendSMSRequest struct {
	Phone string `json:"phone" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

func (s *Server) handleSendSMS(c *gin.Context) {
	var req sendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.notifier.SendSMS(c.Request.Context(), req.Phone, req.Text)
	if err != nil {
		if errors.Is(err, notify.ErrInvalidPhone) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send sms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": res.Delivered, "msg_id": res.MessageID})
}

type logSubmissionRequest struct {
	Vendor       string `json:"vendor" binding:"required"`
	OrderIDLast4 string `json:"order_id_last4" binding:"required,min=4,max=4"`
	Intent       string `json:"intent" binding:"required,oneof=return refund replacement"`
	Reason       string `json:"reason" binding:"required,oneof=damaged missing wrong_item not_as_described other"`
	MsgID        string `json:"msg_id"`
}

func (s *Server) handleLogSubmission(c *gin.Context) {
	var req logSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := audit.Record{
		Vendor:       req.Vendor,
		OrderIDLast4: req.OrderIDLast4,
		Intent:       req.Intent,
		Reason:       req.Reason,
		MsgID:        req.MsgID,
	}
	if err := s.auditLog.Log(rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log submission"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleReturnWorkflow(c *gin.Context) {
	var req caseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IdempotencyKey != "" && !idempotency.ValidateKey(req.IdempotencyKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid idempotency key format"})
		return
	}
	outcome := s.wf.Execute(c.Request.Context(), req.toCase(), req.IdempotencyKey)
	c.JSON(http.StatusOK, outcome)
}

type policyRequest struct {
	Vendor    string `json:"vendor" binding:"required"`
	PolicyKey string `json:"policy_key"`
}

func (s *Server) handlePolicy(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policies, err := vendors.Policy(req.Vendor, req.PolicyKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vendor": req.Vendor, "policies": policies})
}

func (s *Server) handleWorkflowStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "operational",
		"max_execution_time": s.wf.Timeout().Seconds(),
		"max_retries":        s.cfg.Workflow.MaxEmailAttempts,
		"supported_vendors":  vendors.Supported(),
	})
}

// deliverIdempotent routes a send through the idempotency store so retried
// tool calls with the same key reuse the first successful result.
func deliverIdempotent(ctx context.Context, store *idempotency.Store, key string, send func(context.Context) (notify.DeliveryResult, error)) (notify.DeliveryResult, error) {
	data, _, err := store.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		res, sendErr := send(ctx)
		if sendErr != nil {
			return nil, sendErr
		}
		return json.Marshal(res)
	})
	if err != nil {
		return notify.DeliveryResult{Channel: notify.ChannelEmail}, err
	}
	var res notify.DeliveryResult
	if err := json.Unmarshal(data, &res); err != nil {
		return notify.DeliveryResult{Channel: notify.ChannelEmail}, err
	}
	return res, nil
}

package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/patpatpatpatpat/digestus/internal/digest"
	"github.com/patpatpatpatpat/digestus/internal/domain"
	"github.com/patpatpatpatpat/digestus/internal/mail"
	"github.com/patpatpatpatpat/digestus/internal/queue"
	"github.com/patpatpatpatpat/digestus/internal/render"
	"github.com/patpatpatpatpat/digestus/internal/store"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

// Config controls the inbound webhook listener.
type Config struct {
	Enabled bool
	Addr    string // default ":8025"
}

// Request is the provider payload shape we accept.
type Request struct {
	Text      string `json:"text" binding:"required"`
	Email     string `json:"email" binding:"required"`      // team inbound address
	FromEmail string `json:"from_email" binding:"required"` // sender
}

// Dispatcher matches digest.Dispatcher; the auto-reply goes through the same
// queue as every other send job.
type Dispatcher interface {
	Enqueue(queue.Job) error
}

type Server struct {
	cfg       Config
	store     store.Store
	dispatch  Dispatcher
	transport mail.Transport
	render    render.Renderer
	clock     digest.Clock
	log       logx.Logger

	srv *http.Server
}

func NewServer(cfg Config, st store.Store, d Dispatcher, t mail.Transport, r render.Renderer, clock digest.Clock, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":8025"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:       cfg,
		store:     st,
		dispatch:  d,
		transport: t,
		render:    r,
		clock:     clock,
		log:       log,
	}
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.POST("/webhooks/inbound", s.handleInbound)
	return g
}

// Start runs the listener in the background. No-op when disabled.
func (s *Server) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.log.Info("inbound webhook listening", logx.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("inbound webhook server failed", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}
	_ = s.srv.Shutdown(ctx)
}

func (s *Server) handleInbound(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	// Capture the payload first: the audit log is append-only and records
	// every request, parsable or not.
	audit := domain.InboundRequest{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now(),
		Payload:    string(raw),
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil || req.Text == "" || req.Email == "" || req.FromEmail == "" {
		_ = s.store.AppendInbound(c.Request.Context(), audit)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	update, handleErr := s.process(c.Request.Context(), req)
	if update != nil {
		audit.UpdateID = update.ID
	}
	if err := s.store.AppendInbound(c.Request.Context(), audit); err != nil {
		s.log.Error("inbound audit append failed", logx.Err(err))
	}
	if handleErr != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": handleErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) process(ctx context.Context, req Request) (*domain.Update, error) {
	team, err := s.store.TeamByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errors.New("unknown team address")
	}
	if err != nil {
		return nil, err
	}

	membership, err := s.store.MembershipByEmail(ctx, team.ID, req.FromEmail)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !membership.Active) {
		return nil, errors.New("sender is not an active member")
	}
	if err != nil {
		return nil, err
	}

	parsed, ok := Parse(req.Text)
	if !ok {
		s.enqueueFormatErrorReply(req)
		return nil, errors.New("unparseable update format")
	}

	update := &domain.Update{
		MembershipID: membership.ID,
		ForDate:      domain.DateOf(s.clock.Local(time.Now())),
		Done:         parsed.Done,
		WillDo:       parsed.WillDo,
		Blocker:      parsed.Blocker,
	}
	if err := s.store.CreateUpdate(ctx, update); err != nil {
		return nil, err
	}
	return update, nil
}

// enqueueFormatErrorReply sends the "FORMAT ERROR!!" auto-reply through the
// job queue so transport failures get the usual retry treatment.
func (s *Server) enqueueFormatErrorReply(req Request) {
	err := s.dispatch.Enqueue(queue.Job{
		Name: "inbound.format_error_reply",
		Run: func(ctx context.Context) error {
			text, err := s.render.Render("auto_reply.txt", map[string]any{
				"email_text": req.Text,
			})
			if err != nil {
				return queue.NoRetry(err)
			}
			return s.transport.Send(ctx, mail.Message{
				Subject: "FORMAT ERROR!!",
				From:    req.Email,
				To:      []string{req.FromEmail},
				Text:    text,
			})
		},
	})
	if err != nil {
		s.log.Error("format error reply dispatch failed", logx.Err(err))
	}
}

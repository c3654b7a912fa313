package digest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/patpatpatpatpat/digestus/internal/mail"
	"github.com/patpatpatpatpat/digestus/internal/queue"
	"github.com/patpatpatpatpat/digestus/internal/render"
	"github.com/patpatpatpatpat/digestus/internal/store"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

// Job names, visible in logs and queue events.
const (
	jobSendReminders = "reminders.send"
	jobRemindMember  = "reminders.member"
	jobSendDigest    = "digest.send"
	jobSendDigestPM  = "digest.send_pm"
)

// Config controls the scheduling core.
type Config struct {
	// BusinessTimezone is the fixed zone every team is scheduled in.
	// Defaults to Asia/Manila.
	BusinessTimezone string

	// Tick is the cron spec (in the business zone) for the daily scheduling
	// pass. Default "0 0 * * *" (midnight).
	Tick string

	// PublicDomain is the hostname rendered into email footers. Empty is a
	// configuration error: logged, and emails go out with no domain.
	PublicDomain string

	// SendRetryMax / SendRetryDelay form the delivery retry contract:
	// a failed send is retried up to SendRetryMax times, a fixed
	// SendRetryDelay apart. Defaults 5 and 300s.
	SendRetryMax   int
	SendRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BusinessTimezone) == "" {
		c.BusinessTimezone = DefaultTimezone
	}
	if strings.TrimSpace(c.Tick) == "" {
		c.Tick = "0 0 * * *"
	}
	if c.SendRetryMax <= 0 {
		c.SendRetryMax = 5
	}
	if c.SendRetryDelay <= 0 {
		c.SendRetryDelay = 300 * time.Second
	}
	return c
}

// Dispatcher is the job-submission collaborator. *queue.Service implements
// it; tests use a recorder.
type Dispatcher interface {
	Enqueue(queue.Job) error
}

// Service wires the scheduling core together.
type Service struct {
	cfg       Config
	clock     Clock
	store     store.Store
	dispatch  Dispatcher
	transport mail.Transport
	render    render.Renderer
	log       logx.Logger

	// now is swapped in tests.
	now func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, st store.Store, d Dispatcher, t mail.Transport, r render.Renderer, log logx.Logger) (*Service, error) {
	cfg = cfg.withDefaults()
	clock, err := NewClock(cfg.BusinessTimezone)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		clock:     clock,
		store:     st,
		dispatch:  d,
		transport: t,
		render:    r,
		log:       log,
		now:       time.Now,
	}, nil
}

// Start registers the daily scheduling tick on a cron runner in the business
// zone. Idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(s.clock.Location()))
	_, err := c.AddFunc(s.cfg.Tick, func() {
		now := s.now()
		s.ScheduleReminders(ctx, now)
		s.ScheduleDigest(ctx, now)
	})
	if err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("scheduling tick registered",
		logx.String("spec", s.cfg.Tick), logx.String("tz", s.clock.Location().String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
}

// BusinessClock exposes the business-zone clock for collaborators that must
// stamp dates the same way the scheduler does.
func (s *Service) BusinessClock() Clock { return s.clock }

func (s *Service) sendOpt() queue.Options {
	return queue.Options{RetryMax: s.cfg.SendRetryMax, RetryDelay: s.cfg.SendRetryDelay}
}

// domain resolves the configured public hostname. Missing configuration is
// logged and degrades to an empty value; sending proceeds regardless.
func (s *Service) domainName() string {
	d := strings.TrimSpace(s.cfg.PublicDomain)
	if d == "" {
		s.log.Error("public domain is not configured")
	}
	return d
}

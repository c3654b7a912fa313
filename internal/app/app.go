// Package app wires configuration, storage, the send queue, the mail
// transport and the scheduling core into one runnable daemon.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/patpatpatpatpat/digestus/internal/config"
	"github.com/patpatpatpatpat/digestus/internal/digest"
	"github.com/patpatpatpatpat/digestus/internal/eventbus"
	"github.com/patpatpatpatpat/digestus/internal/inbound"
	"github.com/patpatpatpatpat/digestus/internal/mail"
	"github.com/patpatpatpatpat/digestus/internal/queue"
	"github.com/patpatpatpatpat/digestus/internal/render"
	"github.com/patpatpatpatpat/digestus/internal/store"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	bus   eventbus.Bus
	store store.Store
	queue *queue.Service
	mail  *mail.Mandrill
	core  *digest.Service
	inb   *inbound.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(sc, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	qc, err := mapQueueConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	q := queue.New(qc, log.With(logx.String("comp", "queue")), bus)

	mc, err := mapMailerConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	transport := mail.NewMandrill(mc, log.With(logx.String("comp", "mail")))

	r := render.New()

	core, err := digest.New(digest.Config{
		BusinessTimezone: cfg.Scheduler.BusinessTimezone,
		Tick:             cfg.Scheduler.Tick,
		PublicDomain:     cfg.Scheduler.PublicDomain,
		SendRetryMax:     qc.RetryMax,
		SendRetryDelay:   qc.RetryDelay,
	}, st, q, transport, r, log.With(logx.String("comp", "digest")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var inb *inbound.Server
	if cfg.Inbound.Enabled {
		inb = inbound.NewServer(inbound.Config{
			Enabled: true,
			Addr:    cfg.Inbound.Addr,
		}, st, q, transport, r, core.BusinessClock(), log.With(logx.String("comp", "inbound")))
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   st,
		queue:   q,
		mail:    transport,
		core:    core,
		inb:     inb,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	a.queue.Start(runCtx)
	if err := a.core.Start(runCtx); err != nil {
		return err
	}
	if a.inb != nil {
		a.inb.Start(runCtx)
	}

	// Queue events at debug level; workers publish per-job lifecycle events.
	events, unsub := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	}()

	// Config hot reload: logging applies live, everything else needs a restart.
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				if last != nil && (*last != *cfg) && last.Logging == cfg.Logging {
					a.log.Warn("config changed beyond logging; restart required for changes to take effect")
				}
				last = cfg
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.log.Info("stopping")

	step := func(name string, max time.Duration, fn func(context.Context)) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		fn(stepCtx)
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	if a.inb != nil {
		step("inbound", 2*time.Second, func(c context.Context) { a.inb.Stop(c) })
	}
	step("digest", 2*time.Second, func(c context.Context) { a.core.Stop(c) })
	step("queue", 5*time.Second, func(c context.Context) { a.queue.Stop(c) })
	step("store", time.Second, func(context.Context) {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close", logx.Err(err))
		}
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background loops did not drain", logx.Err(ctx.Err()))
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if _, err := mapStoreConfig(cfg); err != nil {
		return err
	}
	if _, err := mapQueueConfig(cfg); err != nil {
		return err
	}
	if _, err := mapMailerConfig(cfg); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.BusinessTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.business_timezone: invalid %q: %w", tz, err)
		}
	}
	return nil
}

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	driver := strings.TrimSpace(cfg.Storage.Driver)
	if driver == "" {
		driver = "sqlite"
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" && driver == "sqlite" {
		path = "./digestus.db"
	}
	return store.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapQueueConfig(cfg *config.Config) (queue.Config, error) {
	if cfg.Queue.Workers < 0 {
		return queue.Config{}, fmt.Errorf("queue.workers must be >= 0")
	}
	if cfg.Queue.QueueSize < 0 {
		return queue.Config{}, fmt.Errorf("queue.queue_size must be >= 0")
	}
	if cfg.Queue.RetryMax < 0 {
		return queue.Config{}, fmt.Errorf("queue.retry_max must be >= 0")
	}
	defTimeout, err := config.ParseDurationField("queue.default_timeout", cfg.Queue.DefaultTimeout)
	if err != nil {
		return queue.Config{}, err
	}
	retryDelay, err := config.ParseDurationOrDefault("queue.retry_delay", cfg.Queue.RetryDelay, 300*time.Second)
	if err != nil {
		return queue.Config{}, err
	}
	retryMax := cfg.Queue.RetryMax
	if retryMax == 0 {
		retryMax = 5
	}
	return queue.Config{
		Workers:        cfg.Queue.Workers,
		QueueSize:      cfg.Queue.QueueSize,
		DefaultTimeout: defTimeout,
		RetryMax:       retryMax,
		RetryDelay:     retryDelay,
	}, nil
}

func mapMailerConfig(cfg *config.Config) (mail.Config, error) {
	timeout, err := config.ParseDurationField("mailer.timeout", cfg.Mailer.Timeout)
	if err != nil {
		return mail.Config{}, err
	}
	key := strings.TrimSpace(cfg.Mailer.APIKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("MANDRILL_API_KEY"))
	}
	return mail.Config{
		APIKey:     key,
		BaseURL:    cfg.Mailer.BaseURL,
		RatePerSec: cfg.Mailer.RatePerSec,
		Timeout:    timeout,
	}, nil
}

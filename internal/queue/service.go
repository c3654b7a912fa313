package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/patpatpatpatpat/digestus/internal/eventbus"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	q      chan Job
	stopCh chan struct{}
	wg     sync.WaitGroup

	// Delayed jobs waiting on their one-shot timer.
	tmu    sync.Mutex
	timers map[string]*time.Timer

	done    uint64
	failed  uint64
	skipped uint64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 300 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		timers: map[string]*time.Timer{},
	}
}

// Start launches the worker pool. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	s.q = make(chan Job, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	queue := s.q
	stopCh := s.stopCh
	s.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker(ctx, stopCh, queue)
		}()
	}
	s.log.Info("queue started", logx.Int("workers", cfg.Workers), logx.Int("queue", cap(queue)))
}

// Stop stops the timers and workers. Delayed jobs that have not fired yet are
// discarded; there is no per-job cancellation beyond this.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	s.q = nil
	s.mu.Unlock()

	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("queue stopped")
	case <-ctx.Done():
		s.log.Warn("queue stop timed out", logx.Err(ctx.Err()))
	}
}

// Enqueue accepts a job. A future RunAt arms a timer; otherwise the job goes
// straight to the workers. A RunAt in the past is not an error: the job runs
// as soon as possible, matching the scheduler's "never roll to tomorrow" rule.
func (s *Service) Enqueue(j Job) error {
	if j.Run == nil {
		return fmt.Errorf("job Run is nil")
	}
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("job Name is required")
	}
	if strings.TrimSpace(j.ID) == "" {
		j.ID = uuid.NewString()
	}

	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	stopCh := s.stopCh
	s.mu.Unlock()

	if q == nil || stopCh == nil {
		return ErrStopped
	}
	j.Opt = j.Opt.withDefaults(cfg)

	delay := time.Until(j.RunAt)
	if j.RunAt.IsZero() || delay <= 0 {
		return s.push(q, j)
	}

	s.log.Debug("job scheduled",
		logx.String("job", j.Name), logx.String("id", j.ID), logx.Time("run_at", j.RunAt))

	s.tmu.Lock()
	id := j.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.tmu.Lock()
		delete(s.timers, id)
		s.tmu.Unlock()

		s.mu.Lock()
		q := s.q
		s.mu.Unlock()
		if q == nil {
			return
		}
		if err := s.push(q, j); err != nil {
			s.log.Error("delayed job lost", logx.String("job", j.Name), logx.String("id", j.ID), logx.Err(err))
		}
	})
	s.tmu.Unlock()
	return nil
}

func (s *Service) push(q chan Job, j Job) error {
	select {
	case q <- j:
		return nil
	default:
		s.log.Warn("job dropped: queue full", logx.String("job", j.Name), logx.String("id", j.ID))
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	s.mu.Unlock()

	ql, qc := 0, 0
	if q != nil {
		ql = len(q)
		qc = cap(q)
	}
	s.tmu.Lock()
	pending := len(s.timers)
	s.tmu.Unlock()

	return Snapshot{
		Workers:  cfg.Workers,
		QueueLen: ql,
		QueueCap: qc,
		Pending:  pending,
		Done:     atomic.LoadUint64(&s.done),
		Failed:   atomic.LoadUint64(&s.failed),
		Skipped:  atomic.LoadUint64(&s.skipped),
	}
}

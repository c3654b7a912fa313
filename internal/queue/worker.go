package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/patpatpatpatpat/digestus/internal/eventbus"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan Job) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j, ok := <-queue:
			if !ok {
				return
			}
			s.execOne(ctx, stopCh, j)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, j Job) {
	start := time.Now()
	s.log.Debug("job.started", logx.String("job", j.Name), logx.String("id", j.ID))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "job.started", Time: start, Data: Event{ID: j.ID, Name: j.Name, Started: start}})
	}

	var err error
	skipped := false
	attempts := 0
	maxAttempts := 1 + j.Opt.RetryMax
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt

		runCtx := ctx
		var cancel func()
		if j.Opt.Timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, j.Opt.Timeout)
		}
		// Guard against panics: one bad job must not take a worker down.
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					s.log.Error("job.panic", logx.String("job", j.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			err = j.Run(runCtx)
		}()
		if cancel != nil {
			cancel()
		}
		if err == nil {
			break
		}
		// Permanent skips terminate without retry.
		var nr noRetryError
		if errors.As(err, &nr) {
			err = nr.err
			skipped = true
			break
		}
		if attempt >= maxAttempts {
			break
		}

		// Fixed countdown between attempts; no backoff, no jitter.
		delay := j.Opt.RetryDelay
		s.log.Warn("job retry scheduled",
			logx.String("job", j.Name), logx.String("id", j.ID),
			logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			err = ctx.Err()
			break attemptLoop
		case <-stopCh:
			if !tmr.Stop() {
				<-tmr.C
			}
			err = ErrStopped
			break attemptLoop
		case <-tmr.C:
		}
	}

	dur := time.Since(start)
	ev := Event{ID: j.ID, Name: j.Name, Started: start, Duration: dur, Attempts: attempts}
	switch {
	case skipped:
		atomic.AddUint64(&s.skipped, 1)
		ev.Error = err.Error()
		s.log.Info("job.skipped", logx.String("job", j.Name), logx.Err(err), logx.Duration("dur", dur))
		s.publish("job.skipped", ev)
	case err != nil:
		atomic.AddUint64(&s.failed, 1)
		ev.Error = err.Error()
		s.log.Warn("job.failed", logx.String("job", j.Name), logx.Err(err), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publish("job.failed", ev)
	default:
		atomic.AddUint64(&s.done, 1)
		s.log.Debug("job.completed", logx.String("job", j.Name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publish("job.finished", ev)
	}
}

func (s *Service) publish(typ string, ev Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

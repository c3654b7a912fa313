package digest

import (
	"context"
	"time"

	"github.com/patpatpatpatpat/digestus/internal/domain"
	"github.com/patpatpatpatpat/digestus/internal/queue"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

// ScheduleReminders enqueues one delayed reminder-send job per eligible team
// whose send days include today (business-local). The ETA is today's date at
// the team's configured reminder time; an ETA already in the past is still
// submitted and runs as soon as possible.
func (s *Service) ScheduleReminders(ctx context.Context, now time.Time) {
	local := s.clock.Local(now)
	teams, err := s.store.EligibleTeams(ctx)
	if err != nil {
		s.log.Error("reminder scheduling: eligible team query failed", logx.Err(err))
		return
	}

	day := domain.Weekday(local)
	for _, team := range teams {
		if !team.SendsOn(day) {
			continue
		}
		team := team
		eta := team.SendRemindersAt.On(local)
		err := s.dispatch.Enqueue(queue.Job{
			Name:  jobSendReminders,
			RunAt: eta,
			Run: func(ctx context.Context) error {
				return s.SendReminders(ctx, team.ID)
			},
		})
		if err != nil {
			// One team's failure never aborts the batch.
			s.log.Error("reminder scheduling failed for team",
				logx.Int64("team", team.ID), logx.Err(err))
			continue
		}
		s.log.Debug("reminders scheduled",
			logx.Int64("team", team.ID), logx.Time("eta", eta))
	}
}

// ScheduleDigest enqueues two delayed digest jobs per eligible team whose
// send days include today: one at the configured digest time, and one exactly
// an hour earlier addressed to project managers only (early preview). Both
// carry the same normalized UTC for-date so the executor is zone-independent.
func (s *Service) ScheduleDigest(ctx context.Context, now time.Time) {
	local := s.clock.Local(now)
	teams, err := s.store.EligibleTeams(ctx)
	if err != nil {
		s.log.Error("digest scheduling: eligible team query failed", logx.Err(err))
		return
	}

	day := domain.Weekday(local)
	for _, team := range teams {
		if !team.SendsOn(day) {
			continue
		}
		team := team
		eta := team.SendDigestAt.On(local)
		forDate := eta.UTC()

		err := s.dispatch.Enqueue(queue.Job{
			Name:  jobSendDigest,
			RunAt: eta,
			Run: func(ctx context.Context) error {
				return s.SendDigest(ctx, team.ID, forDate, false)
			},
		})
		if err != nil {
			s.log.Error("digest scheduling failed for team",
				logx.Int64("team", team.ID), logx.Err(err))
			continue
		}

		// Project managers get the digest an hour early. Independent enqueue;
		// the two jobs may race and no mutual exclusion is assumed.
		err = s.dispatch.Enqueue(queue.Job{
			Name:  jobSendDigestPM,
			RunAt: eta.Add(-time.Hour),
			Run: func(ctx context.Context) error {
				return s.SendDigest(ctx, team.ID, forDate, true)
			},
		})
		if err != nil {
			s.log.Error("pm digest scheduling failed for team",
				logx.Int64("team", team.ID), logx.Err(err))
			continue
		}
		s.log.Debug("digest scheduled",
			logx.Int64("team", team.ID), logx.Time("eta", eta))
	}
}

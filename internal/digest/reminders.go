package digest

import (
	"context"
	"errors"
	"fmt"

	"github.com/patpatpatpatpat/digestus/internal/domain"
	"github.com/patpatpatpatpat/digestus/internal/mail"
	"github.com/patpatpatpatpat/digestus/internal/queue"
	"github.com/patpatpatpatpat/digestus/internal/store"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

// SendReminders runs at the computed ETA. It re-validates team eligibility
// (state may have changed since scheduling), then fans out one independent
// reminder job per active member, carrying the member's open will-do and
// blocker items from today's update when present.
func (s *Service) SendReminders(ctx context.Context, teamID int64) error {
	team, err := s.store.ActiveTeamByID(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Error("active team does not exist", logx.Int64("team", teamID))
		return queue.NoRetry(err)
	}
	if err != nil {
		return err
	}

	members, err := s.store.ActiveMembers(ctx, teamID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		s.log.Error("team has no active members, reminders aborted",
			logx.String("team", team.Name))
		return queue.NoRetry(fmt.Errorf("team %s has no active members", team.Name))
	}

	// The send account must be valid before anything goes out. Any
	// validation failure is a permanent skip, never a retry.
	if err := s.transport.ValidateAccount(ctx, team.SubaccountID); err != nil {
		s.log.Error("team has an invalid send account, reminders aborted",
			logx.String("team", team.Name), logx.Err(err))
		return queue.NoRetry(err)
	}

	today := domain.DateOf(s.clock.Local(s.now()))
	for _, m := range members {
		m := m
		update, err := s.store.UpdateForDate(ctx, m.MembershipID, today)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.Error("update lookup failed",
				logx.Int64("membership", m.MembershipID), logx.Err(err))
			continue
		}

		var todos, blockers []string
		if update != nil && (update.WillDo != "" || update.Blocker != "") {
			todos = update.WillDoList()
			blockers = update.BlockerList()
		}
		err = s.dispatch.Enqueue(queue.Job{
			Name: jobRemindMember,
			Opt:  s.sendOpt(),
			Run: func(ctx context.Context) error {
				return s.RemindTeamMember(ctx, m.MembershipID, todos, blockers)
			},
		})
		if err != nil {
			// One member's failure must not block the rest of the roster.
			s.log.Error("reminder dispatch failed",
				logx.Int64("membership", m.MembershipID), logx.Err(err))
		}
	}
	return nil
}

// RemindTeamMember is the per-member delivery unit. It re-fetches the
// membership (the target may have been deactivated between enqueue and
// execution), renders the reminder and attempts delivery. A transport
// failure is returned as-is so the queue retries it on the fixed countdown.
func (s *Service) RemindTeamMember(ctx context.Context, membershipID int64, todos, blockers []string) error {
	d, err := s.store.ActiveMembershipByID(ctx, membershipID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Error("active membership does not exist", logx.Int64("membership", membershipID))
		return queue.NoRetry(err)
	}
	if err != nil {
		return err
	}

	tctx := map[string]any{
		"team_email":        d.Team.Email,
		"team_name":         d.Team.Name,
		"previous_todos":    todos,
		"previous_blockers": blockers,
		"domain":            s.domainName(),
	}
	text, err := s.render.Render("reminder.txt", tctx)
	if err != nil {
		return queue.NoRetry(err)
	}

	msg := mail.Message{
		Subject:    "What did you get done today?",
		From:       fmt.Sprintf("Digestus Reminder <%s>", d.Team.Email),
		To:         []string{fmt.Sprintf("%s <%s>", d.Name, d.Email)},
		Text:       text,
		AccountTag: d.Team.SubaccountID,
	}
	if err := s.transport.Send(ctx, msg); err != nil {
		s.log.Error("member reminder send failed, will retry",
			logx.Int64("membership", membershipID), logx.Err(err))
		return err
	}
	return nil
}

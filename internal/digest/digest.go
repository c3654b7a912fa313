package digest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/patpatpatpatpat/digestus/internal/domain"
	"github.com/patpatpatpatpat/digestus/internal/mail"
	"github.com/patpatpatpatpat/digestus/internal/queue"
	"github.com/patpatpatpatpat/digestus/internal/store"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

// MemberUpdate is one digest row: a member and their update for the digest
// date, nil when nothing was submitted.
type MemberUpdate struct {
	Name   string
	Role   string
	Update *domain.Update
}

const digestDateFormat = "Mon, Jan 02 2006"

// SendDigest runs at the computed ETA (or an hour earlier for the PM
// preview). forDate is the normalized UTC instant of the digest slot; the
// roster is built against its business-local calendar day.
func (s *Service) SendDigest(ctx context.Context, teamID int64, forDate time.Time, forProjectManagers bool) error {
	team, err := s.store.ActiveTeamByID(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Error("active team does not exist", logx.Int64("team", teamID))
		return queue.NoRetry(err)
	}
	if err != nil {
		return err
	}

	rows, err := s.teamUpdates(ctx, teamID, forDate)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		s.log.Error("team has no active members, digest aborted",
			logx.String("team", team.Name))
		return queue.NoRetry(fmt.Errorf("team %s has no active members", team.Name))
	}

	recipients, err := s.digestRecipients(ctx, team, forProjectManagers)
	if err != nil {
		return err
	}

	localDate := s.clock.Local(forDate).Format(digestDateFormat)
	tctx := map[string]any{
		"members_and_updates": rows,
		"team_name":           team.Name,
		"date":                localDate,
		"domain":              s.domainName(),
	}
	text, err := s.render.Render("digest.txt", tctx)
	if err != nil {
		return queue.NoRetry(err)
	}
	html, err := s.render.Render("digest.html", tctx)
	if err != nil {
		return queue.NoRetry(err)
	}

	msg := mail.Message{
		Subject:    fmt.Sprintf("Digest for %s for %s", team.Name, localDate),
		From:       fmt.Sprintf("Digestus Digest <%s>", team.Email),
		To:         recipients,
		Text:       text,
		HTML:       html,
		AccountTag: team.SubaccountID,
	}
	if err := s.transport.Send(ctx, msg); err != nil {
		s.log.Error("digest send failed, will retry",
			logx.Int64("team", teamID), logx.Err(err))
		return err
	}
	return nil
}

// teamUpdates builds the roster-with-updates view for the business-local day
// of forDate. Members without an update still appear, with a nil Update.
func (s *Service) teamUpdates(ctx context.Context, teamID int64, forDate time.Time) ([]MemberUpdate, error) {
	members, err := s.store.ActiveMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}

	date := domain.DateOf(s.clock.Local(forDate))
	rows := make([]MemberUpdate, 0, len(members))
	for _, m := range members {
		row := MemberUpdate{Name: m.Name, Role: m.Role}
		u, err := s.store.UpdateForDate(ctx, m.MembershipID, date)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		row.Update = u
		rows = append(rows, row)
	}
	return rows, nil
}

// digestRecipients computes the recipient set. PM previews go to the team
// owner only; the regular digest goes to the de-duplicated union of active
// members, silent recipients and the owner.
func (s *Service) digestRecipients(ctx context.Context, team *domain.Team, forProjectManagers bool) ([]string, error) {
	if forProjectManagers {
		return []string{team.OwnerEmail}, nil
	}

	seen := map[string]bool{}
	var out []string
	add := func(email string) {
		if email == "" || seen[email] {
			return
		}
		seen[email] = true
		out = append(out, email)
	}

	members, err := s.store.ActiveMembers(ctx, team.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		add(m.Email)
	}
	silent, err := s.store.SilentRecipientEmails(ctx, team.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range silent {
		add(e)
	}
	add(team.OwnerEmail)

	sort.Strings(out)
	return out, nil
}

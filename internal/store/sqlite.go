package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/patpatpatpatpat/digestus/internal/domain"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const teamColumns = `t.id, t.name, t.description, t.email, t.active, t.subaccount_id,
	t.created_by, u.email, t.timezone, t.send_days, t.send_digest_at, t.send_reminders_at`

func (s *sqliteStore) scanTeam(row interface{ Scan(...any) error }) (*domain.Team, error) {
	var (
		t          domain.Team
		active     int
		subaccount sql.NullString
		sendDays   string
		digestAt   string
		remindAt   string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Email, &active, &subaccount,
		&t.CreatedBy, &t.OwnerEmail, &t.Timezone, &sendDays, &digestAt, &remindAt)
	if err != nil {
		return nil, err
	}
	t.Active = active != 0
	t.SubaccountID = subaccount.String
	t.SendDays = decodeSendDays(sendDays)
	if t.SendDigestAt, err = domain.ParseTimeOfDay(digestAt); err != nil {
		return nil, fmt.Errorf("team %d: %w", t.ID, err)
	}
	if t.SendRemindersAt, err = domain.ParseTimeOfDay(remindAt); err != nil {
		return nil, fmt.Errorf("team %d: %w", t.ID, err)
	}
	return &t, nil
}

func (s *sqliteStore) EligibleTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT `+teamColumns+`
		FROM teams t
		JOIN users u ON u.id = t.created_by
		JOIN memberships m ON m.team_id = t.id AND m.active = 1
		WHERE t.active = 1 AND t.send_days <> ''
		ORDER BY t.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []domain.Team
	for rows.Next() {
		t, err := s.scanTeam(rows)
		if err != nil {
			// One malformed team must not sink the whole batch.
			s.log.Warn("skipping malformed team row", logx.Err(err))
			continue
		}
		teams = append(teams, *t)
	}
	return teams, rows.Err()
}

func (s *sqliteStore) ActiveTeamByID(ctx context.Context, id int64) (*domain.Team, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+teamColumns+`
		FROM teams t
		JOIN users u ON u.id = t.created_by
		WHERE t.id = ? AND t.active = 1`, id)
	t, err := s.scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) TeamByEmail(ctx context.Context, email string) (*domain.Team, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+teamColumns+`
		FROM teams t
		JOIN users u ON u.id = t.created_by
		WHERE t.email = ?`, email)
	t, err := s.scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) ActiveMembers(ctx context.Context, teamID int64) ([]domain.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, u.first_name, u.last_name, u.email, COALESCE(r.name, '')
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		LEFT JOIN roles r ON r.id = m.role_id
		WHERE m.team_id = ? AND m.active = 1
		ORDER BY m.id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var (
			m     domain.Member
			first string
			last  string
		)
		if err := rows.Scan(&m.MembershipID, &first, &last, &m.Email, &m.Role); err != nil {
			return nil, err
		}
		m.Name = domain.User{FirstName: first, LastName: last}.FullName()
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *sqliteStore) ActiveMembershipByID(ctx context.Context, id int64) (*domain.MemberDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT m.id, u.first_name, u.last_name, u.email, COALESCE(r.name, ''), m.team_id
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		LEFT JOIN roles r ON r.id = m.role_id
		WHERE m.id = ? AND m.active = 1`, id)

	var (
		d      domain.MemberDetail
		first  string
		last   string
		teamID int64
	)
	err := row.Scan(&d.MembershipID, &first, &last, &d.Email, &d.Role, &teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Name = domain.User{FirstName: first, LastName: last}.FullName()

	// The team is fetched without the active filter on purpose: the delivery
	// unit validates the membership, not the team, at this point.
	trow := s.db.QueryRowContext(ctx, `
		SELECT `+teamColumns+`
		FROM teams t
		JOIN users u ON u.id = t.created_by
		WHERE t.id = ?`, teamID)
	t, err := s.scanTeam(trow)
	if err != nil {
		return nil, err
	}
	d.Team = *t
	return &d, nil
}

func (s *sqliteStore) MembershipByEmail(ctx context.Context, teamID int64, email string) (*domain.Membership, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.team_id, m.user_id, COALESCE(m.role_id, 0), m.active
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.team_id = ? AND u.email = ?`, teamID, email)

	var (
		m      domain.Membership
		active int
	)
	err := row.Scan(&m.ID, &m.TeamID, &m.UserID, &m.RoleID, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Active = active != 0
	return &m, nil
}

func (s *sqliteStore) UpdateForDate(ctx context.Context, membershipID int64, date domain.Date) (*domain.Update, error) {
	// Lowest id wins when multiple updates exist for one date.
	row := s.db.QueryRowContext(ctx, `
		SELECT id, membership_id, for_date, done, will_do, blocker
		FROM updates
		WHERE membership_id = ? AND for_date = ?
		ORDER BY id LIMIT 1`, membershipID, date.String())

	var (
		u       domain.Update
		forDate string
	)
	err := row.Scan(&u.ID, &u.MembershipID, &forDate, &u.Done, &u.WillDo, &u.Blocker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.ForDate = date
	return &u, nil
}

func (s *sqliteStore) SilentRecipientEmails(ctx context.Context, teamID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.email
		FROM team_silent_recipients tsr
		JOIN silent_recipients sr ON sr.id = tsr.silent_recipient_id
		JOIN users u ON u.id = sr.user_id
		WHERE tsr.team_id = ?
		ORDER BY u.email`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

func (s *sqliteStore) CreateUpdate(ctx context.Context, u *domain.Update) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO updates(membership_id, for_date, done, will_do, blocker)
		VALUES(?,?,?,?,?)`,
		u.MembershipID, u.ForDate.String(), u.Done, u.WillDo, u.Blocker)
	if err != nil {
		return err
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (s *sqliteStore) AppendInbound(ctx context.Context, r domain.InboundRequest) error {
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inbound_requests(id, received_at, payload, update_id)
		VALUES(?,?,?,?)`,
		r.ID, r.ReceivedAt.UTC().Format(time.RFC3339Nano), r.Payload, nullID(r.UpdateID))
	return err
}

func nullID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func decodeSendDays(s string) []int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		out = append(out, n)
	}
	return out
}

// EncodeSendDays is the inverse of the send_days column decoding; exported
// for seeding tools.
func EncodeSendDays(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

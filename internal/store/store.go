package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/patpatpatpatpat/digestus/internal/domain"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

// ErrNotFound is returned when a referenced row does not exist or is no
// longer active. Callers treat it as a permanent skip, never a retry.
var ErrNotFound = errors.New("not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, mainly for tests
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the repository interface the scheduling core depends on.
//
// All queries are read paths except CreateUpdate and AppendInbound; the core
// takes no locks and relies on execution-time re-validation instead.
type Store interface {
	// EligibleTeams returns teams that qualify for scheduling: active,
	// at least one configured send day, at least one active membership.
	EligibleTeams(ctx context.Context) ([]domain.Team, error)

	// ActiveTeamByID re-fetches a team at execution time.
	// Returns ErrNotFound if the team is missing or inactive.
	ActiveTeamByID(ctx context.Context, id int64) (*domain.Team, error)

	// TeamByEmail resolves the team an inbound message was addressed to.
	TeamByEmail(ctx context.Context, email string) (*domain.Team, error)

	// ActiveMembers returns the active roster of a team.
	ActiveMembers(ctx context.Context, teamID int64) ([]domain.Member, error)

	// ActiveMembershipByID re-fetches one membership with its team and user.
	// Returns ErrNotFound if the membership is missing or inactive.
	ActiveMembershipByID(ctx context.Context, id int64) (*domain.MemberDetail, error)

	// MembershipByEmail resolves a member of teamID by user email.
	MembershipByEmail(ctx context.Context, teamID int64, email string) (*domain.Membership, error)

	// UpdateForDate returns the update a membership submitted for the given
	// calendar date. Multiple rows can exist for one date; the lowest id
	// wins so the result is deterministic. Returns ErrNotFound when absent.
	UpdateForDate(ctx context.Context, membershipID int64, date domain.Date) (*domain.Update, error)

	// SilentRecipientEmails returns the emails of a team's silent recipients.
	SilentRecipientEmails(ctx context.Context, teamID int64) ([]string, error)

	// CreateUpdate inserts a new update and fills in its ID.
	CreateUpdate(ctx context.Context, u *domain.Update) error

	// AppendInbound appends one raw webhook payload to the audit log.
	AppendInbound(ctx context.Context, r domain.InboundRequest) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/patpatpatpatpat/digestus/internal/domain"
)

// Memory is an in-process Store. It backs the "memory" driver and is the
// fixture store used throughout the tests.
type Memory struct {
	mu sync.Mutex

	seq int64

	users      map[int64]domain.User
	roles      map[int64]domain.Role
	teams      map[int64]domain.Team
	members    map[int64]domain.Membership
	updates    []domain.Update
	silent     map[int64]domain.SilentRecipient
	teamSilent map[int64][]int64 // team id -> silent recipient ids
	inbound    []domain.InboundRequest
}

func NewMemory() *Memory {
	return &Memory{
		users:      map[int64]domain.User{},
		roles:      map[int64]domain.Role{},
		teams:      map[int64]domain.Team{},
		members:    map[int64]domain.Membership{},
		silent:     map[int64]domain.SilentRecipient{},
		teamSilent: map[int64][]int64{},
	}
}

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

// ---- seeding ----

func (m *Memory) AddUser(u domain.User) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.nextID()
	}
	m.users[u.ID] = u
	return u
}

func (m *Memory) AddRole(r domain.Role) domain.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.nextID()
	}
	m.roles[r.ID] = r
	return r
}

func (m *Memory) AddTeam(t domain.Team) domain.Team {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.nextID()
	}
	if t.OwnerEmail == "" {
		t.OwnerEmail = m.users[t.CreatedBy].Email
	}
	m.teams[t.ID] = t
	return t
}

// SetTeam replaces a stored team (used by tests to flip flags mid-flight).
func (m *Memory) SetTeam(t domain.Team) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[t.ID] = t
}

func (m *Memory) AddMembership(ms domain.Membership) domain.Membership {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms.ID == 0 {
		ms.ID = m.nextID()
	}
	m.members[ms.ID] = ms
	return ms
}

func (m *Memory) SetMembership(ms domain.Membership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[ms.ID] = ms
}

func (m *Memory) AddSilentRecipient(teamID int64, sr domain.SilentRecipient) domain.SilentRecipient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sr.ID == 0 {
		sr.ID = m.nextID()
	}
	m.silent[sr.ID] = sr
	m.teamSilent[teamID] = append(m.teamSilent[teamID], sr.ID)
	return sr
}

// Inbound returns a copy of the captured inbound audit log.
func (m *Memory) Inbound() []domain.InboundRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.InboundRequest, len(m.inbound))
	copy(out, m.inbound)
	return out
}

// Updates returns a copy of all stored updates.
func (m *Memory) Updates() []domain.Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Update, len(m.updates))
	copy(out, m.updates)
	return out
}

// ---- Store ----

func (m *Memory) EligibleTeams(ctx context.Context) ([]domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var teams []domain.Team
	for _, t := range m.teams {
		if !t.Active || len(t.SendDays) == 0 {
			continue
		}
		if !m.hasActiveMemberLocked(t.ID) {
			continue
		}
		teams = append(teams, t)
	}
	sortTeams(teams)
	return teams, nil
}

func (m *Memory) hasActiveMemberLocked(teamID int64) bool {
	for _, ms := range m.members {
		if ms.TeamID == teamID && ms.Active {
			return true
		}
	}
	return false
}

func (m *Memory) ActiveTeamByID(ctx context.Context, id int64) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok || !t.Active {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *Memory) TeamByEmail(ctx context.Context, email string) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teams {
		if t.Email == email {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ActiveMembers(ctx context.Context, teamID int64) ([]domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var members []domain.Member
	for _, ms := range m.members {
		if ms.TeamID != teamID || !ms.Active {
			continue
		}
		members = append(members, m.memberLocked(ms))
	}
	sortMembers(members)
	return members, nil
}

func (m *Memory) memberLocked(ms domain.Membership) domain.Member {
	u := m.users[ms.UserID]
	return domain.Member{
		MembershipID: ms.ID,
		Name:         u.FullName(),
		Email:        u.Email,
		Role:         m.roles[ms.RoleID].Name,
	}
}

func (m *Memory) ActiveMembershipByID(ctx context.Context, id int64) (*domain.MemberDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.members[id]
	if !ok || !ms.Active {
		return nil, ErrNotFound
	}
	return &domain.MemberDetail{
		Member: m.memberLocked(ms),
		Team:   m.teams[ms.TeamID],
	}, nil
}

func (m *Memory) MembershipByEmail(ctx context.Context, teamID int64, email string) (*domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ms := range m.members {
		if ms.TeamID == teamID && m.users[ms.UserID].Email == email {
			cp := ms
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateForDate(ctx context.Context, membershipID int64, date domain.Date) (*domain.Update, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *domain.Update
	for i := range m.updates {
		u := m.updates[i]
		if u.MembershipID != membershipID || u.ForDate != date {
			continue
		}
		if best == nil || u.ID < best.ID {
			cp := u
			best = &cp
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (m *Memory) SilentRecipientEmails(ctx context.Context, teamID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var emails []string
	for _, srID := range m.teamSilent[teamID] {
		sr, ok := m.silent[srID]
		if !ok {
			continue
		}
		if u, ok := m.users[sr.UserID]; ok {
			emails = append(emails, u.Email)
		}
	}
	return emails, nil
}

func (m *Memory) CreateUpdate(ctx context.Context, u *domain.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.nextID()
	}
	m.updates = append(m.updates, *u)
	return nil
}

func (m *Memory) AppendInbound(ctx context.Context, r domain.InboundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = append(m.inbound, r)
	return nil
}

func (m *Memory) Close() error { return nil }

func sortTeams(teams []domain.Team) {
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
}

func sortMembers(members []domain.Member) {
	sort.Slice(members, func(i, j int) bool { return members[i].MembershipID < members[j].MembershipID })
}

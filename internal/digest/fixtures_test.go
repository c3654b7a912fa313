package digest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/patpatpatpatpat/digestus/internal/domain"
	"github.com/patpatpatpatpat/digestus/internal/mail"
	"github.com/patpatpatpatpat/digestus/internal/queue"
	"github.com/patpatpatpatpat/digestus/internal/render"
	"github.com/patpatpatpatpat/digestus/internal/store"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

// recorder captures enqueued jobs instead of running them.
type recorder struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (r *recorder) Enqueue(j queue.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, j)
	return nil
}

func (r *recorder) all() []queue.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = nil
}

// runAll executes every recorded job inline and returns their errors.
func (r *recorder) runAll(ctx context.Context) []error {
	var errs []error
	for _, j := range r.all() {
		errs = append(errs, j.Run(ctx))
	}
	return errs
}

// fakeTransport records sent messages and fails on demand.
type fakeTransport struct {
	mu          sync.Mutex
	sent        []mail.Message
	validateErr error
	sendErr     error
}

func (f *fakeTransport) ValidateAccount(ctx context.Context, ref string) error {
	return f.validateErr
}

func (f *fakeTransport) Send(ctx context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) messages() []mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mail.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

// fixture is the standard team: owner + two active members, sending Mon-Fri,
// reminders at 15:00 and digest at 17:00 business time.
type fixture struct {
	st   *store.Memory
	disp *recorder
	tr   *fakeTransport
	svc  *Service

	team  domain.Team
	owner domain.User
	alice domain.Membership
	bob   domain.Membership

	aliceUser domain.User
	bobUser   domain.User
}

// mondayNoon is a known Monday in the business zone (2015-01-05 12:00 +08).
var mondayNoon = time.Date(2015, time.January, 5, 4, 0, 0, 0, time.UTC)

// saturdayNoon is 2015-01-03 12:00 +08.
var saturdayNoon = time.Date(2015, time.January, 3, 4, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMemory()
	owner := st.AddUser(domain.User{Email: "boss@example.com", FirstName: "Beth", LastName: "Ops"})
	au := st.AddUser(domain.User{Email: "alice@example.com", FirstName: "Alice", LastName: "Smith"})
	bu := st.AddUser(domain.User{Email: "bob@example.com", FirstName: "Bob", LastName: "Stone"})
	pm := st.AddRole(domain.Role{Name: "Project Manager"})

	team := st.AddTeam(domain.Team{
		Name:            "Platform",
		Email:           "platform@digestus.io",
		Active:          true,
		SubaccountID:    "sub-platform",
		CreatedBy:       owner.ID,
		SendDays:        []int{0, 1, 2, 3, 4},
		SendRemindersAt: domain.TimeOfDay{Hour: 15},
		SendDigestAt:    domain.TimeOfDay{Hour: 17},
	})
	alice := st.AddMembership(domain.Membership{TeamID: team.ID, UserID: au.ID, Active: true})
	bob := st.AddMembership(domain.Membership{TeamID: team.ID, UserID: bu.ID, RoleID: pm.ID, Active: true})

	disp := &recorder{}
	tr := &fakeTransport{}
	svc, err := New(Config{
		PublicDomain:   "digestus.io",
		SendRetryDelay: time.Millisecond,
	}, st, disp, tr, render.New(), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc.now = func() time.Time { return mondayNoon }

	return &fixture{
		st: st, disp: disp, tr: tr, svc: svc,
		team: team, owner: owner, alice: alice, bob: bob,
		aliceUser: au, bobUser: bu,
	}
}

package inbound

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/patpatpatpatpat/digestus/internal/digest"
	"github.com/patpatpatpatpat/digestus/internal/domain"
	"github.com/patpatpatpatpat/digestus/internal/mail"
	"github.com/patpatpatpatpat/digestus/internal/queue"
	"github.com/patpatpatpatpat/digestus/internal/render"
	"github.com/patpatpatpatpat/digestus/internal/store"
	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

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

type fakeTransport struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (f *fakeTransport) ValidateAccount(context.Context, string) error { return nil }

func (f *fakeTransport) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

type serverFixture struct {
	st     *store.Memory
	disp   *recorder
	tr     *fakeTransport
	srv    *Server
	team   domain.Team
	member domain.Membership
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	st := store.NewMemory()
	owner := st.AddUser(domain.User{Email: "boss@example.com"})
	alice := st.AddUser(domain.User{Email: "alice@example.com", FirstName: "Alice"})
	team := st.AddTeam(domain.Team{
		Name:      "Platform",
		Email:     "platform@digestus.io",
		Active:    true,
		CreatedBy: owner.ID,
	})
	ms := st.AddMembership(domain.Membership{TeamID: team.ID, UserID: alice.ID, Active: true})

	clock, err := digest.NewClock("")
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	disp := &recorder{}
	tr := &fakeTransport{}
	srv := NewServer(Config{Enabled: true}, st, disp, tr, render.New(), clock, logx.Nop())
	return &serverFixture{st: st, disp: disp, tr: tr, srv: srv, team: team, member: ms}
}

func (f *serverFixture) post(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/inbound", &buf)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestInboundCreatesUpdate(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	w := f.post(t, Request{
		Text:      "- shipped v2\n+ deploy\n* waiting on ops",
		Email:     "platform@digestus.io",
		FromEmail: "alice@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	updates := f.st.Updates()
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	u := updates[0]
	if u.MembershipID != f.member.ID {
		t.Fatalf("membership = %d, want %d", u.MembershipID, f.member.ID)
	}
	if u.Done != "shipped v2" || u.WillDo != "deploy" || u.Blocker != "waiting on ops" {
		t.Fatalf("parsed fields wrong: %+v", u)
	}
	if u.ForDate.IsZero() {
		t.Fatal("update must carry the business-local date")
	}

	audit := f.st.Inbound()
	if len(audit) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(audit))
	}
	if audit[0].UpdateID != u.ID {
		t.Fatalf("audit UpdateID = %d, want %d", audit[0].UpdateID, u.ID)
	}
	if !strings.Contains(audit[0].Payload, "shipped v2") {
		t.Fatal("audit must capture the raw payload")
	}
}

func TestInboundUnknownTeam(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	w := f.post(t, Request{Text: "- x", Email: "nobody@digestus.io", FromEmail: "alice@example.com"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	if len(f.st.Updates()) != 0 {
		t.Fatal("no update may be created for an unknown team")
	}
	// The audit row is still appended.
	if len(f.st.Inbound()) != 1 {
		t.Fatal("audit must record rejected requests")
	}
}

func TestInboundInactiveSender(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)
	ms := f.member
	ms.Active = false
	f.st.SetMembership(ms)

	w := f.post(t, Request{Text: "- x", Email: "platform@digestus.io", FromEmail: "alice@example.com"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	if len(f.st.Updates()) != 0 {
		t.Fatal("no update may be created for an inactive sender")
	}
}

func TestInboundUnknownSender(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	w := f.post(t, Request{Text: "- x", Email: "platform@digestus.io", FromEmail: "stranger@example.com"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestInboundFormatErrorTriggersAutoReply(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	w := f.post(t, Request{
		Text:      "hi, I did lots of things today!",
		Email:     "platform@digestus.io",
		FromEmail: "alice@example.com",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	if len(f.st.Updates()) != 0 {
		t.Fatal("unparseable text must not create an update")
	}

	jobs := f.disp.all()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1 auto-reply", len(jobs))
	}
	if err := jobs[0].Run(context.Background()); err != nil {
		t.Fatalf("auto-reply job: %v", err)
	}

	if len(f.tr.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.tr.sent))
	}
	msg := f.tr.sent[0]
	if msg.Subject != "FORMAT ERROR!!" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if msg.From != "platform@digestus.io" || msg.To[0] != "alice@example.com" {
		t.Fatalf("addressing wrong: from %q to %v", msg.From, msg.To)
	}
	if !strings.Contains(msg.Text, "hi, I did lots of things today!") {
		t.Fatalf("auto-reply must quote the original message:\n%s", msg.Text)
	}
}

func TestInboundMalformedJSON(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	w := f.post(t, "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	// Even unparsable payloads land in the audit log.
	audit := f.st.Inbound()
	if len(audit) != 1 || audit[0].Payload != "{not json" {
		t.Fatalf("audit = %+v", audit)
	}
}

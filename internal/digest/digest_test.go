package digest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/patpatpatpatpat/digestus/internal/domain"
	"github.com/patpatpatpatpat/digestus/internal/mail"
	"github.com/patpatpatpatpat/digestus/internal/queue"
)

// digestSlot is Monday 17:00 business time as the scheduler normalizes it.
var digestSlot = time.Date(2015, time.January, 5, 9, 0, 0, 0, time.UTC)

func TestSendDigestToFullRecipientSet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// carol is a silent recipient; alice doubles as one to prove the union
	// de-duplicates.
	carol := f.st.AddUser(domain.User{Email: "carol@example.com", FirstName: "Carol"})
	f.st.AddSilentRecipient(f.team.ID, domain.SilentRecipient{UserID: carol.ID})
	f.st.AddSilentRecipient(f.team.ID, domain.SilentRecipient{UserID: f.aliceUser.ID})

	today := domain.DateOf(f.svc.clock.Local(digestSlot))
	if err := f.st.CreateUpdate(context.Background(), &domain.Update{
		MembershipID: f.alice.ID,
		ForDate:      today,
		Done:         "shipped v2",
		WillDo:       "deploy",
	}); err != nil {
		t.Fatalf("seed update: %v", err)
	}

	if err := f.svc.SendDigest(context.Background(), f.team.ID, digestSlot, false); err != nil {
		t.Fatalf("SendDigest: %v", err)
	}

	msgs := f.tr.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent = %d, want 1", len(msgs))
	}
	msg := msgs[0]

	wantTo := []string{"alice@example.com", "bob@example.com", "boss@example.com", "carol@example.com"}
	if !reflect.DeepEqual(msg.To, wantTo) {
		t.Fatalf("To = %v, want %v", msg.To, wantTo)
	}
	if msg.Subject != "Digest for Platform for Mon, Jan 05 2015" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if msg.From != "Digestus Digest <platform@digestus.io>" {
		t.Fatalf("from = %q", msg.From)
	}
	if msg.AccountTag != "sub-platform" {
		t.Fatalf("account tag = %q", msg.AccountTag)
	}
	for _, want := range []string{"Alice Smith", "- shipped v2", "+ deploy", "No update submitted."} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("text missing %q:\n%s", want, msg.Text)
		}
	}
	if !strings.Contains(msg.HTML, "<li>shipped v2</li>") {
		t.Fatalf("html missing update row:\n%s", msg.HTML)
	}
}

func TestSendDigestPMPreviewGoesToOwnerOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.svc.SendDigest(context.Background(), f.team.ID, digestSlot, true); err != nil {
		t.Fatalf("SendDigest: %v", err)
	}

	msgs := f.tr.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent = %d, want 1", len(msgs))
	}
	if !reflect.DeepEqual(msgs[0].To, []string{"boss@example.com"}) {
		t.Fatalf("To = %v, want owner only", msgs[0].To)
	}
}

func TestSendDigestMissingTeamIsPermanent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.svc.SendDigest(context.Background(), 9999, digestSlot, false)
	if !queue.IsNoRetry(err) {
		t.Fatalf("expected permanent skip, got %v", err)
	}
}

func TestSendDigestEmptyRosterIsPermanent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, ms := range []domain.Membership{f.alice, f.bob} {
		ms.Active = false
		f.st.SetMembership(ms)
	}

	err := f.svc.SendDigest(context.Background(), f.team.ID, digestSlot, false)
	if !queue.IsNoRetry(err) {
		t.Fatalf("expected permanent skip, got %v", err)
	}
}

func TestSendDigestTransportFailureIsRetryable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.tr.sendErr = &mail.TransportError{Op: "send", Err: errors.New("timeout")}

	err := f.svc.SendDigest(context.Background(), f.team.ID, digestSlot, false)
	if err == nil {
		t.Fatal("expected error")
	}
	if queue.IsNoRetry(err) {
		t.Fatalf("transport failures must stay retryable, got %v", err)
	}
}

func TestSendDigestMissingDomainDegrades(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.svc.cfg.PublicDomain = ""

	if err := f.svc.SendDigest(context.Background(), f.team.ID, digestSlot, false); err != nil {
		t.Fatalf("SendDigest must still deliver without a domain: %v", err)
	}
	msgs := f.tr.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent = %d, want 1", len(msgs))
	}
	if strings.Contains(msgs[0].Text, "digestus.io") {
		t.Fatalf("footer domain leaked into text:\n%s", msgs[0].Text)
	}
}

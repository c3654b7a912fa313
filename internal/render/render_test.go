package render

import (
	"strings"
	"testing"

	"github.com/patpatpatpatpat/digestus/internal/domain"
)

func TestRenderReminder(t *testing.T) {
	t.Parallel()
	r := New()
	out, err := r.Render("reminder.txt", map[string]any{
		"team_name":         "Platform",
		"team_email":        "platform@digestus.io",
		"previous_todos":    []string{"deploy", "write notes"},
		"previous_blockers": []string{"waiting on ops"},
		"domain":            "digestus.io",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"update for Platform",
		"+ deploy",
		"+ write notes",
		"* waiting on ops",
		"platform@digestus.io",
		"digestus.io",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReminderWithoutOpenItems(t *testing.T) {
	t.Parallel()
	r := New()
	out, err := r.Render("reminder.txt", map[string]any{
		"team_name":  "Platform",
		"team_email": "platform@digestus.io",
		"domain":     "",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(out, "Yesterday you planned to") || strings.Contains(out, "You were blocked by") {
		t.Fatalf("empty sections must be omitted:\n%s", out)
	}
}

func TestRenderDigestTextAndHTML(t *testing.T) {
	t.Parallel()
	r := New()
	ctx := map[string]any{
		"team_name": "Platform",
		"date":      "Mon, Jan 05 2015",
		"domain":    "digestus.io",
		"members_and_updates": []struct {
			Name   string
			Role   string
			Update *domain.Update
		}{
			{Name: "Alice Smith", Role: "Engineer", Update: &domain.Update{Done: "shipped <v2>", WillDo: "deploy"}},
			{Name: "Bob Stone"},
		},
	}

	text, err := r.Render("digest.txt", ctx)
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	for _, want := range []string{"Digest for Platform", "Alice Smith (Engineer)", "- shipped <v2>", "No update submitted."} {
		if !strings.Contains(text, want) {
			t.Fatalf("text missing %q:\n%s", want, text)
		}
	}

	html, err := r.Render("digest.html", ctx)
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	// html/template escapes member-provided text.
	if !strings.Contains(html, "shipped &lt;v2&gt;") {
		t.Fatalf("html did not escape update text:\n%s", html)
	}
}

func TestRenderAutoReply(t *testing.T) {
	t.Parallel()
	r := New()
	out, err := r.Render("auto_reply.txt", map[string]any{"email_text": "hello world"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "could not parse") || !strings.Contains(out, "hello world") {
		t.Fatalf("auto reply incomplete:\n%s", out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	t.Parallel()
	if _, err := New().Render("nope.txt", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

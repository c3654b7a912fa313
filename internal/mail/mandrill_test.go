package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "github.com/patpatpatpatpat/digestus/pkg/logx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Mandrill {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMandrill(Config{APIKey: "test-key", BaseURL: srv.URL, RatePerSec: 100}, logx.Nop())
}

func TestValidateAccountOK(t *testing.T) {
	t.Parallel()
	m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subaccounts/info.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["key"] != "test-key" || body["id"] != "sub-1" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := m.ValidateAccount(context.Background(), "sub-1"); err != nil {
		t.Fatalf("ValidateAccount: %v", err)
	}
}

func TestValidateAccountUnknownSubaccount(t *testing.T) {
	t.Parallel()
	m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"name":    "Unknown_Subaccount",
			"message": "No subaccount exists with the id sub-gone",
		})
	})

	err := m.ValidateAccount(context.Background(), "sub-gone")
	if !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("err = %v, want ErrUnknownAccount", err)
	}
	if IsTransient(err) {
		t.Fatal("unknown account must not be transient")
	}
}

func TestValidateAccountEmptyReference(t *testing.T) {
	t.Parallel()
	m := NewMandrill(Config{APIKey: "k"}, logx.Nop())
	if err := m.ValidateAccount(context.Background(), "  "); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("err = %v, want ErrUnknownAccount", err)
	}
}

func TestValidateAccountServerErrorIsTransient(t *testing.T) {
	t.Parallel()
	m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	err := m.ValidateAccount(context.Background(), "sub-1")
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient transport error", err)
	}
}

func TestSendMessage(t *testing.T) {
	t.Parallel()
	var got map[string]any
	m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/send.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	err := m.Send(context.Background(), Message{
		Subject:    "Digest for Platform",
		From:       "Digestus Digest <platform@digestus.io>",
		To:         []string{"alice@example.com", "bob@example.com"},
		Text:       "body",
		HTML:       "<p>body</p>",
		AccountTag: "sub-platform",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg, _ := got["message"].(map[string]any)
	if msg["subject"] != "Digest for Platform" || msg["subaccount"] != "sub-platform" {
		t.Fatalf("message = %v", msg)
	}
	to, _ := msg["to"].([]any)
	if len(to) != 2 {
		t.Fatalf("to = %v", to)
	}
}

func TestSendFailureIsTransient(t *testing.T) {
	t.Parallel()
	m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	err := m.Send(context.Background(), Message{Subject: "x", To: []string{"a@b.c"}})
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient transport error", err)
	}
}

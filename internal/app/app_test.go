package app

import (
	"testing"
	"time"

	"github.com/patpatpatpatpat/digestus/internal/config"
)

func TestMapQueueConfigDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapQueueConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapQueueConfig: %v", err)
	}
	if got.RetryMax != 5 {
		t.Fatalf("RetryMax = %d, want 5", got.RetryMax)
	}
	if got.RetryDelay != 300*time.Second {
		t.Fatalf("RetryDelay = %v, want 300s", got.RetryDelay)
	}
}

func TestMapQueueConfigRejectsNegatives(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Queue.Workers = -1
	if _, err := mapQueueConfig(cfg); err == nil {
		t.Fatal("expected error for negative workers")
	}
}

func TestMapStoreConfigDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapStoreConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapStoreConfig: %v", err)
	}
	if got.Driver != "sqlite" || got.Path != "./digestus.db" {
		t.Fatalf("got %+v", got)
	}
}

func TestMapMailerConfigEnvFallback(t *testing.T) {
	t.Setenv("MANDRILL_API_KEY", "env-key")
	got, err := mapMailerConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapMailerConfig: %v", err)
	}
	if got.APIKey != "env-key" {
		t.Fatalf("APIKey = %q, want env fallback", got.APIKey)
	}

	cfg := &config.Config{}
	cfg.Mailer.APIKey = "file-key"
	got, err = mapMailerConfig(cfg)
	if err != nil || got.APIKey != "file-key" {
		t.Fatalf("APIKey = %q, err %v; config value must win", got.APIKey, err)
	}
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Scheduler.BusinessTimezone = "Mars/Olympus"
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
	cfg.Scheduler.BusinessTimezone = "Asia/Manila"
	if err := validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

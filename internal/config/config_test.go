package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"CART_TTL_HOURS", "RETURN_WINDOW_HOURS", "OUTBOX_WORKERS", "CURRENCY", "OUTBOX_POLL_INTERVAL_MS", "PAYMENT_GATEWAY"} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()
	if cfg.CartTTL != 7*24*time.Hour {
		t.Fatalf("expected 7 day cart ttl, got %s", cfg.CartTTL)
	}
	if cfg.ReturnWindow != 7*24*time.Hour {
		t.Fatalf("expected 7 day return window, got %s", cfg.ReturnWindow)
	}
	if cfg.Currency != "inr" {
		t.Fatalf("expected inr, got %s", cfg.Currency)
	}
	if cfg.OutboxWorkers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.OutboxWorkers)
	}
	if cfg.PaymentGateway != "stripe" {
		t.Fatalf("expected stripe gateway by default, got %s", cfg.PaymentGateway)
	}
	if cfg.OutboxPollInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms poll interval, got %s", cfg.OutboxPollInterval)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RETURN_WINDOW_HOURS", "48")
	t.Setenv("OUTBOX_WORKERS", "9")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("GATEWAY_RPS", "not-a-number")

	cfg := FromEnv()
	if cfg.ReturnWindow != 48*time.Hour {
		t.Fatalf("expected 48h, got %s", cfg.ReturnWindow)
	}
	if cfg.OutboxWorkers != 9 {
		t.Fatalf("expected 9 workers, got %d", cfg.OutboxWorkers)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.ShutdownTimeout)
	}
	if cfg.GatewayRPS != 20 {
		t.Fatalf("invalid value should fall back to default, got %d", cfg.GatewayRPS)
	}
}

package config_test

import (
	"testing"
	"time"

	"msghub/internal/config"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := config.Load(); err == nil {
		t.Fatal("Load succeeded without JWT_SECRET")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	app, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if app.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", app.HTTPAddr)
	}
	if app.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", app.MaxRetries)
	}
	if app.Retention() != 30*24*time.Hour {
		t.Errorf("Retention = %v", app.Retention())
	}
	if app.Location() != time.UTC {
		t.Errorf("Location = %v", app.Location())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("QUEUE_VISIBILITY_TIMEOUT", "90s")
	t.Setenv("MESSAGE_RETENTION_DAYS", "7")

	app, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if app.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q", app.HTTPAddr)
	}
	if app.VisibilityTimeout != 90*time.Second {
		t.Errorf("VisibilityTimeout = %v", app.VisibilityTimeout)
	}
	if app.Retention() != 7*24*time.Hour {
		t.Errorf("Retention = %v", app.Retention())
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Hustle.CompletionPolicy != PolicySelfReport {
		t.Fatalf("policy = %q", cfg.Hustle.CompletionPolicy)
	}
	if cfg.Feed.Bus != BusLocal {
		t.Fatalf("memory storage should default to the local bus, got %q", cfg.Feed.Bus)
	}
	if cfg.UsesRedis() {
		t.Fatalf("memory + local bus needs no redis")
	}
	if cfg.Address() != "0.0.0.0:8080" {
		t.Fatalf("address = %q", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("COMPLETION_POLICY", "Poster-Confirm")
	t.Setenv("JWT_TTL", "90")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Hustle.CompletionPolicy != PolicyPosterConfirm {
		t.Fatalf("policy = %q", cfg.Hustle.CompletionPolicy)
	}
	if cfg.JWT.TTL != 90*time.Second {
		t.Fatalf("jwt ttl = %v", cfg.JWT.TTL)
	}
	if cfg.Feed.Bus != BusRedis || !cfg.UsesRedis() {
		t.Fatalf("postgres storage should default to the redis bus")
	}
	if cfg.Database.URL != "postgres://hustle:pw@db:5432/hustle?sslmode=disable" {
		t.Fatalf("dsn = %q", cfg.Database.URL)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"driver": {"STORAGE_DRIVER": "sqlite"},
		"policy": {"COMPLETION_POLICY": "anyone"},
		"bus":    {"FEED_BUS": "kafka"},
		"no jwt": {"APP_ENV": "production", "JWT_SECRET": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

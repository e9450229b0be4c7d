package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"VISION_TIMEOUT_SECONDS", "STRIPE_TIMEOUT_SECONDS", "VISION_MAX_DIMENSION",
		"VISION_JPEG_QUALITY", "MAX_FREE_USES", "DB_DRIVER", "VISION_MODEL", "PORT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}
	if cfg.Entitlement.MaxFreeUses != 1 {
		t.Fatalf("MaxFreeUses = %d, want 1", cfg.Entitlement.MaxFreeUses)
	}
	if cfg.Vision.Timeout != 60*time.Second || cfg.Stripe.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeouts: vision=%s stripe=%s", cfg.Vision.Timeout, cfg.Stripe.Timeout)
	}
	if cfg.DB.Driver != "postgres" || cfg.Vision.Model != "gpt-4o" || cfg.Port != "8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MAX_FREE_USES", "3")
	t.Setenv("VISION_TIMEOUT_SECONDS", "15")
	t.Setenv("DB_DRIVER", "SQLite")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}
	if cfg.Entitlement.MaxFreeUses != 3 || cfg.Vision.Timeout != 15*time.Second || cfg.DB.Driver != "sqlite" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"MAX_FREE_USES":          "-1",
		"VISION_TIMEOUT_SECONDS": "soon",
		"VISION_JPEG_QUALITY":    "101",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("LoadConfig should fail for %s=%s", key, val)
			}
		})
	}
}

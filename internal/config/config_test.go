package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.MetricsNamespace != "peerdesk" {
		t.Fatalf("MetricsNamespace = %q, want peerdesk", cfg.MetricsNamespace)
	}
	if cfg.ProviderMode != "auto" {
		t.Fatalf("ProviderMode = %q, want auto", cfg.ProviderMode)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
	if cfg.ProviderTimeout != 5*time.Second {
		t.Fatalf("ProviderTimeout = %v, want 5s", cfg.ProviderTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_BIND_ADDR", "127.0.0.1:9090")
	t.Setenv("PROVIDER_MODE", "MOCK")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("PROVIDER_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:9090" {
		t.Fatalf("BindAddr = %q, want override", cfg.BindAddr)
	}
	if cfg.ProviderMode != "mock" {
		t.Fatalf("ProviderMode = %q, want lowercased mock", cfg.ProviderMode)
	}
	if cfg.ShutdownTimeout != 30*time.Second || cfg.ProviderTimeout != 2*time.Second {
		t.Fatalf("timeouts = %v/%v, want 30s/2s", cfg.ShutdownTimeout, cfg.ProviderTimeout)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing auth secret", map[string]string{}},
		{"invalid provider mode", map[string]string{
			"AUTH_JWT_SECRET": "s",
			"PROVIDER_MODE":   "carrier-pigeon",
		}},
		{"rest without credentials", map[string]string{
			"AUTH_JWT_SECRET": "s",
			"PROVIDER_MODE":   "rest",
		}},
		{"unparseable timeout", map[string]string{
			"AUTH_JWT_SECRET":  "s",
			"PROVIDER_TIMEOUT": "soon",
		}},
		{"timeout below minimum", map[string]string{
			"AUTH_JWT_SECRET":  "s",
			"PROVIDER_TIMEOUT": "100ms",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Clear the required secret first so each case controls it.
			t.Setenv("AUTH_JWT_SECRET", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error")
			}
		})
	}
}

func TestLoadRestModeWithCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROVIDER_MODE", "rest")
	t.Setenv("PROVIDER_API_KEY", "key")
	t.Setenv("PROVIDER_API_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProviderMode != "rest" || cfg.ProviderAPIKey != "key" {
		t.Fatalf("cfg = %+v, want rest mode with credentials", cfg)
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the pairing service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	DatabaseURL string

	AuthJWTSecret string

	// ProviderMode selects the realtime provider backend: auto|rest|mock.
	// auto picks rest when credentials are present, otherwise mock.
	ProviderMode      string
	ProviderBaseURL   string
	ProviderAPIKey    string
	ProviderAPISecret string
	ProviderTimeout   time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "peerdesk"),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AuthJWTSecret:     strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
		ProviderMode:      strings.ToLower(envOrDefault("PROVIDER_MODE", "auto")),
		ProviderBaseURL:   envOrDefault("PROVIDER_BASE_URL", "https://video.stream-io-api.com"),
		ProviderAPIKey:    strings.TrimSpace(os.Getenv("PROVIDER_API_KEY")),
		ProviderAPISecret: strings.TrimSpace(os.Getenv("PROVIDER_API_SECRET")),
		ShutdownTimeout:   15 * time.Second,
		ProviderTimeout:   5 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout, err = durationFromEnv("PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}

	switch cfg.ProviderMode {
	case "auto", "rest", "mock":
	default:
		return Config{}, fmt.Errorf("invalid PROVIDER_MODE: %q (expected auto|rest|mock)", cfg.ProviderMode)
	}
	if cfg.ProviderMode == "rest" && (cfg.ProviderAPIKey == "" || cfg.ProviderAPISecret == "") {
		return Config{}, fmt.Errorf("PROVIDER_MODE=rest requires PROVIDER_API_KEY and PROVIDER_API_SECRET")
	}
	if cfg.AuthJWTSecret == "" {
		return Config{}, fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if cfg.ProviderTimeout < time.Second {
		return Config{}, fmt.Errorf("PROVIDER_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

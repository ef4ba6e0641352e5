package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/peerdesk/peerdesk/internal/auth"
	"github.com/peerdesk/peerdesk/internal/config"
	"github.com/peerdesk/peerdesk/internal/httpapi"
	"github.com/peerdesk/peerdesk/internal/observability"
	"github.com/peerdesk/peerdesk/internal/provider"
	"github.com/peerdesk/peerdesk/internal/session"
	"github.com/peerdesk/peerdesk/internal/user"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	sessionStore, err := session.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("session store init failed: %v", err)
	}
	defer sessionStore.Close()

	userStore, err := user.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("user store init failed: %v", err)
	}
	defer userStore.Close()

	providerClient, tokens, resolvedMode, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("provider init failed: %v", err)
	}
	cfg.ProviderMode = resolvedMode
	log.Printf("realtime provider: %s", resolvedMode)

	guard, err := auth.NewGuard(cfg.AuthJWTSecret, userStore)
	if err != nil {
		log.Fatalf("access guard init failed: %v", err)
	}

	coordinator := session.NewCoordinator(sessionStore, providerClient, metrics, cfg.ProviderTimeout)

	api := httpapi.New(cfg, coordinator, guard, userStore, providerClient, tokens, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// buildProvider resolves the realtime backend. The REST client needs vendor
// credentials; without them "auto" degrades to the in-process mock so the
// service still runs end to end locally.
func buildProvider(cfg config.Config) (provider.Client, httpapi.TokenSource, string, error) {
	useREST := cfg.ProviderMode == "rest" ||
		(cfg.ProviderMode == "auto" && cfg.ProviderAPIKey != "" && cfg.ProviderAPISecret != "")

	if useREST {
		client, err := provider.NewRESTClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderAPISecret, cfg.ProviderTimeout)
		if err != nil {
			return nil, nil, "", err
		}
		return client, client, "rest", nil
	}

	secret := cfg.ProviderAPISecret
	if secret == "" {
		secret = cfg.AuthJWTSecret
	}
	return provider.NewMock(), mockTokenSource{tokens: provider.NewTokens(secret)}, "mock", nil
}

type mockTokenSource struct {
	tokens *provider.Tokens
}

func (m mockTokenSource) UserToken(userID string) (string, error) {
	return m.tokens.UserToken(userID, time.Now(), 0)
}

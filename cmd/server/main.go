package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	pairgate "github.com/pairgate/pairgate"
	echoapi "github.com/pairgate/pairgate/api/echo"
	"github.com/pairgate/pairgate/cache"
	"github.com/pairgate/pairgate/client"
	"github.com/pairgate/pairgate/config"
	"github.com/pairgate/pairgate/internal/server"
	"github.com/pairgate/pairgate/log"
	"github.com/pairgate/pairgate/rpc"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting pairgate server", map[string]interface{}{
		"http_port": cfg.HTTPPort,
		"issuer":    cfg.Issuer,
		"log_level": cfg.LogLevel,
	})

	providerCfg := pairgate.NewDefaultConfig(cfg.Issuer)
	providerCfg.UserCodePrefix = cfg.UserCodePrefix
	providerCfg.AuthCodeTTL = time.Duration(cfg.AuthCodeTTLSec) * time.Second
	providerCfg.AccessTokenTTL = time.Duration(cfg.AccessTokenTTLHour) * time.Hour
	providerCfg.RefreshTokenTTL = time.Duration(cfg.RefreshTokenTTLHour) * time.Hour
	providerCfg.SweepInterval = time.Duration(cfg.SweepIntervalSec) * time.Second
	providerCfg.DevicePollInterval = time.Duration(cfg.DevicePollIntervalSec) * time.Second
	providerCfg.StaticAPIKey = cfg.StaticAPIKey

	// Stores
	authStore := pairgate.NewAuthorizationStore(providerCfg.SweepInterval)
	defer authStore.Close()

	tokenStore := cache.NewMemoryTokenStore(providerCfg.SweepInterval)
	defer func() {
		if closeErr := tokenStore.Close(); closeErr != nil {
			appLogger.Error(ctx, "Failed to close token store", closeErr)
		}
	}()

	clientStore := client.NewInMemoryClientStore()

	// Services
	flowService := pairgate.NewFlowService(authStore, providerCfg, appLogger)
	tokenService := pairgate.NewTokenService(authStore, tokenStore, providerCfg, appLogger)
	clientService := client.NewService(clientStore)

	dispatcher := rpc.NewDispatcher(
		rpc.ServerInfo{Name: "Pairgate RPC Server", Version: echoapi.Version},
		[]rpc.Tool{rpc.EchoTool()},
	)

	oauthAPI := echoapi.NewOAuth2API(
		flowService,
		tokenService,
		clientService,
		authStore,
		providerCfg,
		dispatcher,
		echoapi.DefaultRenderer{},
	)

	httpServer := server.NewHTTPServer(cfg, appLogger, oauthAPI)

	go func() {
		appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{
			"addr": httpServer.Addr,
		})
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			appLogger.Fatal(ctx, "HTTP server failed", serveErr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info(ctx, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown failed", err)
	}

	appLogger.Info(ctx, "Server stopped.")
}

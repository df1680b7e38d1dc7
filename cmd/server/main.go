package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	shared "github.com/gravacoach/server/pkg"
	"github.com/gravacoach/server/pkg/bootstrap"
	"github.com/gravacoach/server/pkg/coach"
	"github.com/gravacoach/server/pkg/infrastructure/oauth"
	"github.com/gravacoach/server/pkg/infrastructure/sentry"
	"github.com/gravacoach/server/pkg/integrations/whoop"
	"github.com/gravacoach/server/pkg/server"
)

func main() {
	ctx := context.Background()

	svc, err := bootstrap.NewService(ctx)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	cfg := svc.Config

	logger := bootstrap.NewLogger("coach-server")

	tokenCfg := oauth.Config{
		TokenURL:     shared.WhoopTokenURL,
		ClientID:     cfg.WhoopClientID,
		ClientSecret: cfg.WhoopClientSecret,
		Scope:        "offline",
	}

	linker := oauth.NewLinker(svc.DB, shared.ProviderWhoop, &oauth2.Config{
		ClientID:     cfg.WhoopClientID,
		ClientSecret: cfg.WhoopClientSecret,
		RedirectURL:  cfg.WhoopRedirectURL,
		Scopes:       []string{shared.WhoopScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  shared.WhoopAuthURL,
			TokenURL: shared.WhoopTokenURL,
		},
	})

	coachSvc := coach.NewService(
		svc.DB,
		whoop.NewClient(),
		tokenCfg,
		coach.NewGeminiGenerator(cfg.GeminiAPIKey),
		logger,
	)

	handlers := server.NewHandlers(coachSvc, linker, logger)
	router := server.NewRouter(handlers, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
	sentry.Flush(2 * time.Second)
}

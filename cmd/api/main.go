package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/estatehub/realtime/internal/application/delivery"
	"github.com/estatehub/realtime/internal/application/notification"
	"github.com/estatehub/realtime/internal/config"
	"github.com/estatehub/realtime/internal/infrastructure/awsconf"
	"github.com/estatehub/realtime/internal/infrastructure/dynamo"
	jwtinfra "github.com/estatehub/realtime/internal/infrastructure/jwt"
	"github.com/estatehub/realtime/internal/infrastructure/memory"
	"github.com/estatehub/realtime/internal/infrastructure/sns"
	transporthttp "github.com/estatehub/realtime/internal/transport/http"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := notificationStore(ctx, cfg)
	if err != nil {
		slog.Error("notification store unavailable", "store", cfg.NotificationStore, "error", err)
		os.Exit(1)
	}

	// JWT provider (optional: without keys every authenticated route answers 401).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		slog.Warn("JWT provider not available", "error", err)
	}

	var fwd delivery.Forwarder
	if cfg.NotificationsTopicARN != "" {
		awsCfg, err := awsconf.Load(ctx, cfg)
		if err != nil {
			slog.Error("SNS forwarding unavailable", "error", err)
			os.Exit(1)
		}
		fwd = sns.NewForwarder(sns.NewClient(awsCfg, awsconf.BaseEndpoint(cfg)), cfg.NotificationsTopicARN)
		slog.Info("forwarding offline notifications", "topic", cfg.NotificationsTopicARN)
	}

	deps := transporthttp.NewDeps(cfg, repo, fwd, jwtProvider, logger)
	router := transporthttp.NewRouter(ctx, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.NotificationStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		deps.Cache.Run(gctx, cfg.Cache.SweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	deps.Coordinator.Wait()
	if err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func notificationStore(ctx context.Context, cfg *config.Config) (notification.Repository, error) {
	switch cfg.NotificationStore {
	case "memory":
		return memory.NewNotificationRepo(), nil
	case "dynamo":
		awsCfg, err := awsconf.Load(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client := dynamo.NewClient(awsCfg, awsconf.BaseEndpoint(cfg))
		// Creates the table if it doesn't exist.
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return dynamo.NewNotificationRepo(client, cfg.DynamoTables.Notifications), nil
	default:
		return nil, fmt.Errorf("unknown notification store %q", cfg.NotificationStore)
	}
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

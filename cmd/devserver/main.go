// Package main is the entrypoint for the local attribution server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/penshort/deeplink/internal/config"
	"github.com/penshort/deeplink/internal/devserver"
	"github.com/penshort/deeplink/internal/logging"
	"github.com/penshort/deeplink/internal/middleware"
	"github.com/penshort/deeplink/internal/server"
	"github.com/penshort/deeplink/pkg/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		registry devserver.DeviceRegistry = devserver.NewMemoryRegistry()
		links    session.Store            = session.NewMemoryStore()
		ready    devserver.HealthChecker
		closers  []func(context.Context) error
	)

	if cfg.RedisURL != "" {
		store, err := session.NewRedisStore(ctx, cfg.RedisURL, "deeplink:dev:")
		if err != nil {
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			os.Exit(1)
		}
		logger.Info("connected to Redis")

		registry = devserver.NewRedisRegistry(store.Client(), "")
		links = store
		ready = store
		closers = append(closers, func(context.Context) error { return store.Close() })
	}

	h := devserver.New(registry, links, ready, devserver.Config{
		BaseURL:      cfg.BaseURL,
		DeferredLink: cfg.DeferredLink,
	}, logger)

	r := devserver.NewRouter(h, devserver.RouterConfig{
		Keys:          middleware.KeySet{Test: cfg.TestKey, Live: cfg.LiveKey},
		IsDevelopment: cfg.IsDevelopment(),
		MaxBodySize:   cfg.MaxRequestBodySize,
	}, logger)

	srv := server.New(r, cfg.AppPort, server.Options{
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	for _, fn := range closers {
		srv.OnShutdown("redis", fn)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"deferred_link", cfg.DeferredLink != "",
		"keys_configured", cfg.TestKey != "" || cfg.LiveKey != "",
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}

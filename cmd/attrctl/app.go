package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/penshort/deeplink/internal/config"
	"github.com/penshort/deeplink/internal/logging"
	"github.com/penshort/deeplink/pkg/attribution"
	"github.com/penshort/deeplink/pkg/metrics"
	"github.com/penshort/deeplink/pkg/session"
	"github.com/penshort/deeplink/pkg/transport"
)

// app carries state shared by subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	modeFlag   string
	apiURLFlag string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "attrctl",
		Short:         "Resolve attribution and create links against an attribution service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.modeFlag, "mode", "", "credential mode: test or live (default from DEEPLINK_MODE)")
	root.PersistentFlags().StringVar(&a.apiURLFlag, "api-url", "", "attribution service URL (default from DEEPLINK_API_URL)")

	root.AddCommand(
		newFingerprintCmd(a),
		newVerifyCmd(a),
		newTrackCmd(a),
		newCreateLinkCmd(a),
		newResetCmd(a),
	)

	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.modeFlag != "" {
		cfg.Mode = a.modeFlag
	}
	if a.apiURLFlag != "" {
		cfg.APIURL = a.apiURLFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	a.cfg = cfg
	a.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	return nil
}

// openStore opens the configured marker store. The returned func releases it.
func (a *app) openStore(ctx context.Context) (session.Store, func() error, error) {
	switch a.cfg.Store {
	case config.StoreMemory:
		return session.NewMemoryStore(), func() error { return nil }, nil
	case config.StoreRedis:
		store, err := session.NewRedisStore(ctx, a.cfg.RedisURL, session.DefaultRedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		if err := os.MkdirAll(a.cfg.StorePath, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create store dir: %w", err)
		}
		store, err := session.OpenBadgerStore(a.cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}

func (a *app) tracker(ctx context.Context) (*session.Tracker, func() error, error) {
	store, closeFn, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return session.NewTracker(store, a.logger), closeFn, nil
}

func (a *app) transport() (*transport.Client, error) {
	return transport.New(a.cfg.APIURL,
		transport.WithTimeout(a.cfg.HTTPTimeout),
		transport.WithMaxAttempts(a.cfg.HTTPMaxAttempts),
		transport.WithLogger(a.logger),
	)
}

// coordinator wires a Coordinator over the configured store and transport.
func (a *app) coordinator(ctx context.Context, recorder metrics.Recorder) (*attribution.Coordinator, func(), error) {
	client, err := a.transport()
	if err != nil {
		return nil, nil, err
	}
	tracker, closeStore, err := a.tracker(ctx)
	if err != nil {
		return nil, nil, err
	}

	c := attribution.NewCoordinator(client, tracker,
		attribution.WithCredentials(a.cfg.Credentials()),
		attribution.WithLogger(a.logger),
		attribution.WithMetrics(recorder),
	)

	cleanup := func() {
		c.Close()
		if err := closeStore(); err != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}
	return c, cleanup, nil
}

// verifyTimeout bounds a whole verify including transport retries.
func (a *app) verifyTimeout() time.Duration {
	attempts := a.cfg.HTTPMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts)*a.cfg.HTTPTimeout + 15*time.Second
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ritzau/kube-playground/pkg/config"
	"github.com/ritzau/kube-playground/pkg/logging"
	"github.com/ritzau/kube-playground/pkg/metrics"
	"github.com/ritzau/kube-playground/pkg/playground"
	"github.com/ritzau/kube-playground/pkg/pubsub"
	"github.com/ritzau/kube-playground/pkg/store"
	"github.com/ritzau/kube-playground/pkg/watcher"
	"github.com/ritzau/kube-playground/pkg/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the playground API with live updates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.IntP("port", "p", 8080, "Port to listen on")
	flags.String("listen", "", "Address to listen on (default all interfaces)")
	flags.Duration("reconcile-delay", 0, "Quiet period before pods are reconciled (default 300ms)")
	flags.Duration("reconcile-maxwait", 0, "Longest a pending reconciliation waits (default 2s)")
	flags.String("store-backend", "", "Snapshot store: file, redis or none (default file)")
	flags.String("store-dir", "", "Directory of the file store")
	flags.String("store-redis-addr", "", "Address of the redis store")
	flags.Int("store-redis-db", 0, "Database of the redis store")
	flags.StringP("watch", "w", "", "Manifest file or directory to apply on every change")
}

func serve(ctx context.Context, cfg *config.Config) error {
	snapshots, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	if snapshots != nil {
		defer snapshots.Close()
	}

	m := metrics.New()
	publisher := pubsub.NewSSEPublisher()
	defer publisher.Close()

	session := playground.New(playground.Options{
		ReconcileDelay:   cfg.Reconcile.Delay,
		ReconcileMaxWait: cfg.Reconcile.MaxWait,
		Publisher:        publisher,
		Metrics:          m,
		Store:            snapshots,
	})
	defer session.Close()

	server := web.NewServer(session, publisher, m)

	if cfg.Watch != "" {
		apply := func(ctx context.Context, text string) {
			out := session.UpdateFromYAML(ctx, text)
			if !out.OK {
				logging.Warn("watched manifests rejected", "path", cfg.Watch, "reason", out.Message)
				return
			}
			for _, w := range out.Warnings {
				logging.Info("manifest warning", "path", cfg.Watch, "warning", w)
			}
		}
		if err := watcher.Follow(ctx, cfg.Watch, cfg.Reconcile.Delay, cfg.Reconcile.MaxWait, apply); err != nil {
			return fmt.Errorf("failed to watch %s: %w", cfg.Watch, err)
		}
		logging.Info("Watching manifests", "path", cfg.Watch)
	}

	logging.Info("Playground ready",
		"session", session.ID(),
		"store", cfg.Store.Backend,
		"reconcileDelay", cfg.Reconcile.Delay)
	return server.Start(ctx, cfg.Address())
}

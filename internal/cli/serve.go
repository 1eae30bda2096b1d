package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"orderlyflow/internal/calendar"
	"orderlyflow/internal/config"
	"orderlyflow/internal/ics"
	appLog "orderlyflow/internal/log"
	"orderlyflow/internal/scheduler"
	"orderlyflow/internal/web"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		listen string
		noSync bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the subscription scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, !noSync)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&noSync, "no-initial-sync", false, "Wait for the first cron tick before importing subscriptions")
	return cmd
}

// app holds the components shared by serve and sync.
type app struct {
	svc   *calendar.Service
	sched *scheduler.Scheduler
	close func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc := calendar.NewService(st, calendar.Options{Location: loc, MaxInstances: cfg.MaxInstances})
	sched, err := scheduler.New(cfg.SyncCron, cfg.Subscriptions, ics.NewFetcher(cfg.CacheDir, nil), svc, loc)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &app{svc: svc, sched: sched, close: st.Close}, nil
}

func serve(ctx context.Context, cfg *config.Config, syncNow bool) error {
	appLog.Info("orderlyflow starting",
		"version", Version,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"driver", cfg.Database.Driver,
		"subscriptions", len(cfg.Subscriptions),
	)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if appLog.ParseLevel(cfg.LogLevel) != appLog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := web.NewServer(cfg, a.svc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return a.sched.Run(gctx, syncNow) })

	err = g.Wait()
	appLog.Info("orderlyflow exiting")
	return err
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Import every configured subscription once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			failed := 0
			out := cmd.OutOrStdout()
			for _, r := range a.sched.SyncAll(cmd.Context()) {
				if r.Err != nil {
					failed++
					fmt.Fprintf(out, "%s: error: %v\n", r.SubscriptionID, r.Err)
					continue
				}
				fmt.Fprintf(out, "%s: %d inserted, %d skipped\n", r.SubscriptionID, r.Import.Inserted, r.Import.Skipped)
			}
			if failed > 0 {
				return fmt.Errorf("%d subscription(s) failed", failed)
			}
			return nil
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

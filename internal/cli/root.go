// Package cli builds the orderlyflow command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"orderlyflow/internal/config"
	appLog "orderlyflow/internal/log"
	"orderlyflow/internal/store"
)

// Version information, set at build time using ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand returns the orderlyflow command with all subcommands.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "orderlyflow",
		Short: "Home maintenance calendar with recurring events",
		Long: `OrderlyFlow tracks homes, maintenance tasks and calendar events.

Recurring events are materialized into concrete instances when they are
created. Subscribed iCalendar feeds are imported on a cron schedule.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "/etc/orderlyflow/config.yaml", "Path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newSyncCommand(opts),
		newExpandCommand(),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	defer appLog.Sync()
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the config file and applies the log level.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", o.configPath, err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// openStore opens the configured database and applies the schema.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "orderlyflow version %s\n", Version)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
		},
	}
}

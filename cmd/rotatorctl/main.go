package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"Rotator/internal/di"
	"Rotator/pkg/config"
	applogger "Rotator/pkg/logger"
	"Rotator/pkg/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd(ctx).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	color      bool
}

func rootCmd(ctx context.Context) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "rotatorctl",
		Short:         "Operate the momentum rotation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config/config.yaml", "config file path")
	root.PersistentFlags().BoolVar(&opts.color, "color", false, "colorize JSON output")

	root.AddCommand(warmupCmd(ctx, opts))
	root.AddCommand(rebalanceCmd(ctx, opts))
	root.AddCommand(historyCmd(ctx, opts))
	root.AddCommand(stateCmd(ctx, opts))
	return root
}

// withApp builds the full dependency graph without starting the scheduler
// or HTTP server, and closes clients afterwards.
func withApp(opts *options, fn func(app *server.App) error) error {
	cfg, err := config.LoadWithEnv(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer app.Close()
	return fn(app)
}

func warmupCmd(ctx context.Context, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "warmup",
		Short: "Fetch missing daily bars for the universe and benchmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(app *server.App) error {
				if err := app.Engine().Warmup(ctx); err != nil {
					return fmt.Errorf("warmup: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "bars up to date")
				return nil
			})
		},
	}
}

func rebalanceCmd(ctx context.Context, opts *options) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Run a manual rebalance in-process and print the result",
		Long: `Run the full pipeline once with trigger=manual. Orders are placed
against the configured brokerage account, so --confirm is required.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to place orders without --confirm")
			}
			return withApp(opts, func(app *server.App) error {
				if err := app.Engine().LoadState(ctx); err != nil {
					app.Logger().Warn("continuing with default state", applogger.Error(err))
				}
				runCtx, cancel := runContext(ctx, app.Config().Schedule.RunTimeout)
				defer cancel()
				res := app.Engine().TriggerManual(runCtx)
				if err := render(cmd.OutOrStdout(), res, opts.color); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("rebalance failed: %s", res.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "allow orders to be submitted")
	return cmd
}

func historyCmd(ctx context.Context, opts *options) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent rebalance log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if n < 1 || n > 100 {
				return fmt.Errorf("-n must be between 1 and 100")
			}
			return withApp(opts, func(app *server.App) error {
				logs, err := app.Engine().History(ctx, n)
				if err != nil {
					return fmt.Errorf("history: %w", err)
				}
				return render(cmd.OutOrStdout(), logs, opts.color)
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 10, "number of entries")
	return cmd
}

func stateCmd(ctx context.Context, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the persisted algorithm state with live account and positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(app *server.App) error {
				if err := app.Engine().LoadState(ctx); err != nil {
					return fmt.Errorf("load state: %w", err)
				}
				status, err := app.Engine().Status(ctx)
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				return render(cmd.OutOrStdout(), status, opts.color)
			})
		},
	}
}

// runContext bounds a manual run the same way the scheduler bounds its runs.
func runContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

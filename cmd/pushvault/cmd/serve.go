package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/pushvault/internal/api"
	"github.com/wesm/pushvault/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run pushvault as a daemon that accepts pushes over HTTP",
	Long: `Run pushvault as a long-running daemon in the foreground. It performs:
  - HTTP API server on the configured port (default: 8484)
  - Scheduled sweeps of expired messages and database compaction
  - Group cache refreshes whenever the store changes

Configure it in config.toml:
  [server]
  api_port = 8484
  api_key = "change-me"

  [maintenance]
  sweep_schedule = "*/15 * * * *"
  compact_schedule = "0 4 * * 0"

Cron format: minute hour day-of-month month day-of-week
  Examples:
    */15 * * * *  = Every 15 minutes
    0 4 * * 0     = 4:00 AM on Sundays
    @hourly       = At the start of every hour

Use Ctrl+C to stop the daemon gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Refuse an exposed bind before touching the database.
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	v, err := openVault()
	if err != nil {
		return err
	}
	defer v.Close()

	sched := scheduler.New().WithLogger(logger)
	count, errs := sched.AddMaintenanceJobs(cfg.Maintenance, v.mgr)
	for _, err := range errs {
		logger.Error("failed to schedule maintenance job", "error", err)
	}

	apiServer := api.NewServer(cfg, v.mgr, sched, logger)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return v.mgr.Run(ctx) })
	g.Go(func() error {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", "cause", context.Cause(ctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", "error", err)
		}

		select {
		case <-sched.Stop().Done():
		case <-time.After(30 * time.Second):
			logger.Warn("maintenance jobs still running after 30 seconds")
		}
		return nil
	})

	sched.Start()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pushvault daemon started\n")
	fmt.Fprintf(out, "  API server: http://%s\n", cfg.ServerAddr())
	fmt.Fprintf(out, "  Database: %s\n", cfg.DatabasePath())
	fmt.Fprintf(out, "  Maintenance jobs: %d\n", count)
	for _, st := range sched.Status() {
		fmt.Fprintf(out, "    %s (%s): next run at %s\n",
			st.Name, st.Schedule, st.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Shutdown complete.")
	return nil
}
